package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Brownie44l1/face-embed/internal/config"
	"github.com/Brownie44l1/face-embed/internal/handlers"
	"github.com/Brownie44l1/face-embed/internal/model"
)

type stubAnalyzer struct {
	faces []model.Face
	crash bool
}

func (s *stubAnalyzer) Analyze(ctx context.Context, img *image.RGBA, maxFaces int) ([]model.Face, error) {
	if s.crash {
		panic("model crashed")
	}
	return s.faces, nil
}

func (s *stubAnalyzer) EmbeddingDim() int { return 4 }
func (s *stubAnalyzer) Engines() int      { return 1 }
func (s *stubAnalyzer) Name() string      { return "stub" }

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:           "127.0.0.1",
		Port:           0,
		MaxUploadBytes: 1 << 20,
		MaxPixels:      1 << 20,
		RequestTimeout: 5 * time.Second,
	}
}

func newTestServer(t *testing.T, cfg config.ServerConfig, analyzer handlers.FaceAnalyzer) *httptest.Server {
	t.Helper()
	s := New(cfg, handlers.NewHandler(analyzer, cfg.MaxUploadBytes, cfg.MaxPixels))
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postImage(t *testing.T, url string) *http.Response {
	t.Helper()
	var img bytes.Buffer
	if err := png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "face.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	part.Write(img.Bytes())
	writer.Close()

	resp, err := http.Post(url+"/embed", writer.FormDataContentType(), body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_EmbedRoute(t *testing.T) {
	ts := newTestServer(t, testServerConfig(), &stubAnalyzer{
		faces: []model.Face{{Score: 0.9, Embedding: []float32{0.1, 0.2, 0.3, 0.4}}},
	})

	resp := postImage(t, ts.URL)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out model.EmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(out.Embedding) != 4 || out.Embedding[3] != 0.4 {
		t.Errorf("unexpected embedding %v", out.Embedding)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("expected wildcard CORS header, got %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}

func TestServer_HealthRoute(t *testing.T) {
	ts := newTestServer(t, testServerConfig(), &stubAnalyzer{})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestServer_EmbedRequiresPost(t *testing.T) {
	ts := newTestServer(t, testServerConfig(), &stubAnalyzer{})

	resp, err := http.Get(ts.URL + "/embed")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestServer_UnknownRoute(t *testing.T) {
	ts := newTestServer(t, testServerConfig(), &stubAnalyzer{})

	resp, err := http.Post(ts.URL+"/predict", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestServer_RecoversFromPanic(t *testing.T) {
	ts := newTestServer(t, testServerConfig(), &stubAnalyzer{crash: true})

	resp := postImage(t, ts.URL)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500 after panic, got %d", resp.StatusCode)
	}

	// the server keeps serving afterwards
	health, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", health.StatusCode)
	}
}

func TestCORS_Preflight(t *testing.T) {
	handler := CORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight must not reach the next handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/embed", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("expected Access-Control-Allow-Methods header")
	}
}

func TestCORS_Whitelist(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := CORS([]string{"https://app.example"})(next)

	tests := []struct {
		origin string
		want   string
	}{
		{"https://app.example", "https://app.example"},
		{"https://evil.example", ""},
		{"", ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/embed", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %q: Access-Control-Allow-Origin = %q, want %q", tt.origin, got, tt.want)
		}
		if recorder.Code != http.StatusNoContent {
			t.Errorf("origin %q: expected request to reach handler, got %d", tt.origin, recorder.Code)
		}
	}
}
