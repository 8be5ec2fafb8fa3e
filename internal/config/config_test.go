package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"FACE_HOST", "FACE_PORT", "FACE_MANIFEST", "FACE_ENGINES",
		"FACE_MAX_UPLOAD_BYTES", "FACE_MAX_PIXELS", "FACE_REQUEST_TIMEOUT", "FACE_INTRA_OP_THREADS",
		"ONNXRUNTIME_LIB", "FACE_SERVICE_URL", "FACE_CLIENT_TIMEOUT", "WEB_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Server.Addr() != "127.0.0.1:5006" {
		t.Errorf("expected default addr 127.0.0.1:5006, got %s", cfg.Server.Addr())
	}
	if cfg.Server.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Errorf("expected max upload %d, got %d", DefaultMaxUploadBytes, cfg.Server.MaxUploadBytes)
	}
	if cfg.Server.MaxPixels != DefaultMaxPixels {
		t.Errorf("expected max pixels %d, got %d", DefaultMaxPixels, cfg.Server.MaxPixels)
	}
	if cfg.Model.Engines != 1 {
		t.Errorf("expected 1 engine by default, got %d", cfg.Model.Engines)
	}
	if cfg.Model.ManifestPath != DefaultManifestPath {
		t.Errorf("expected manifest path %s, got %s", DefaultManifestPath, cfg.Model.ManifestPath)
	}
	if len(cfg.Server.AllowedOrigins) != 0 {
		t.Errorf("expected no CORS whitelist, got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Client.ServiceURL != DefaultServiceURL {
		t.Errorf("expected service URL %s, got %s", DefaultServiceURL, cfg.Client.ServiceURL)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("FACE_HOST", "0.0.0.0")
	t.Setenv("FACE_PORT", "9000")
	t.Setenv("FACE_ENGINES", "4")
	t.Setenv("FACE_REQUEST_TIMEOUT", "5s")
	t.Setenv("FACE_MAX_PIXELS", "1000000")
	t.Setenv("FACE_INTRA_OP_THREADS", "0")
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := Load()

	if cfg.Server.Addr() != "0.0.0.0:9000" {
		t.Errorf("expected addr 0.0.0.0:9000, got %s", cfg.Server.Addr())
	}
	if cfg.Model.Engines != 4 {
		t.Errorf("expected 4 engines, got %d", cfg.Model.Engines)
	}
	if cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", cfg.Server.RequestTimeout)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected allowed origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.MaxPixels != 1_000_000 {
		t.Errorf("expected 1000000 max pixels, got %d", cfg.Server.MaxPixels)
	}
	if cfg.Model.IntraOpThreads != 0 {
		t.Errorf("expected 0 intra-op threads, got %d", cfg.Model.IntraOpThreads)
	}
}

func TestEnvInt_Invalid(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 7},
		{"abc", 7},
		{"-3", 7},
		{"0", 7},
		{"12", 12},
	}

	for _, tt := range tests {
		t.Setenv("TEST_ENV_INT", tt.value)
		if got := envInt("TEST_ENV_INT", 7); got != tt.want {
			t.Errorf("envInt(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestParseManifest_Defaults(t *testing.T) {
	data := []byte(`
name: buffalo_l
detector:
  path: det_10g.onnx
recognizer:
  path: w600k_r50.onnx
`)

	m, err := ParseManifest(data, "/opt/models")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.Detector.Path != filepath.Join("/opt/models", "det_10g.onnx") {
		t.Errorf("detector path not resolved: %s", m.Detector.Path)
	}
	if m.Detector.InputSize != 640 || m.Recognizer.InputSize != 112 {
		t.Errorf("unexpected input sizes %d/%d", m.Detector.InputSize, m.Recognizer.InputSize)
	}
	if m.Detector.ScoreThresh != 0.5 || m.Detector.NMSThresh != 0.4 {
		t.Errorf("unexpected thresholds %v/%v", m.Detector.ScoreThresh, m.Detector.NMSThresh)
	}
	if len(m.Detector.Strides) != 3 || m.Detector.AnchorsPerPt != 2 {
		t.Errorf("unexpected anchor layout %v x%d", m.Detector.Strides, m.Detector.AnchorsPerPt)
	}
	if m.Recognizer.EmbeddingDim != 512 {
		t.Errorf("expected embedding dim 512, got %d", m.Recognizer.EmbeddingDim)
	}
}

func TestParseManifest_AbsolutePathKept(t *testing.T) {
	data := []byte(`
detector:
  path: /models/det.onnx
recognizer:
  path: /models/rec.onnx
  embedding_dim: 128
`)

	m, err := ParseManifest(data, "/elsewhere")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Detector.Path != "/models/det.onnx" {
		t.Errorf("absolute path rewritten: %s", m.Detector.Path)
	}
	if m.Recognizer.EmbeddingDim != 128 {
		t.Errorf("expected embedding dim 128, got %d", m.Recognizer.EmbeddingDim)
	}
}

func TestParseManifest_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing detector", "recognizer:\n  path: rec.onnx\n"},
		{"missing recognizer", "detector:\n  path: det.onnx\n"},
		{"bad stride", "detector:\n  path: det.onnx\n  strides: [7]\nrecognizer:\n  path: rec.onnx\n"},
		{"invalid yaml", "detector: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseManifest([]byte(tt.data), "."); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoadManifest_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	content := "detector:\n  path: det.onnx\nrecognizer:\n  path: rec.onnx\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Recognizer.Path != filepath.Join(dir, "rec.onnx") {
		t.Errorf("recognizer path not resolved against manifest dir: %s", m.Recognizer.Path)
	}

	if _, err := LoadManifest(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing manifest")
	}
}
