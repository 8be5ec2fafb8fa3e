package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"log"
	"math"
	"net/http"

	"github.com/Brownie44l1/face-embed/internal/imaging"
	"github.com/Brownie44l1/face-embed/internal/model"
)

// FormField is the multipart field that carries the uploaded image.
const FormField = "file"

const (
	errParseForm    = "Failed to parse form"
	errNoFile       = "No file provided. Use 'file' as the form field name"
	errInvalidImage = "Invalid image format. Supported: " + imaging.SupportedFormats
	errTooLarge     = "Image dimensions too large"
	errNoFace       = "No face detected"
	errBusy         = "Model busy"
	errEmbedFailed  = "Embedding failed"
)

// FaceAnalyzer finds faces in an image, best detection first, and embeds up to
// maxFaces of them (all when maxFaces <= 0).
type FaceAnalyzer interface {
	Analyze(ctx context.Context, img *image.RGBA, maxFaces int) ([]model.Face, error)
	EmbeddingDim() int
	Engines() int
	Name() string
}

type Handler struct {
	analyzer       FaceAnalyzer
	maxUploadBytes int64
	maxPixels      int
}

func NewHandler(analyzer FaceAnalyzer, maxUploadBytes int64, maxPixels int) *Handler {
	return &Handler{
		analyzer:       analyzer,
		maxUploadBytes: maxUploadBytes,
		maxPixels:      maxPixels,
	}
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, model.ErrorResponse{Error: message})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, model.HealthResponse{
		Status:       "healthy",
		Model:        h.analyzer.Name(),
		EmbeddingDim: h.analyzer.EmbeddingDim(),
		Engines:      h.analyzer.Engines(),
	})
}

// Embed decodes the uploaded image and responds with the embedding of the
// first detected face.
func (h *Handler) Embed(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, errParseForm)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(FormField)
	if err != nil {
		respondError(w, http.StatusBadRequest, errNoFile)
		return
	}
	defer file.Close()

	img, format, err := imaging.Decode(file, h.maxPixels)
	if err != nil {
		log.Printf("Decode failed for %q (%d bytes): %v", header.Filename, header.Size, err)
		if errors.Is(err, imaging.ErrTooLarge) {
			respondError(w, http.StatusBadRequest, errTooLarge)
			return
		}
		respondError(w, http.StatusBadRequest, errInvalidImage)
		return
	}

	// only the best face is returned, so only it is embedded
	faces, err := h.analyzer.Analyze(r.Context(), img, 1)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, model.ErrPoolClosed) {
			respondError(w, http.StatusServiceUnavailable, errBusy)
			return
		}
		log.Printf("Embedding error: %v", err)
		respondError(w, http.StatusInternalServerError, errEmbedFailed)
		return
	}

	if len(faces) == 0 {
		respondError(w, http.StatusBadRequest, errNoFace)
		return
	}

	if !finite(faces[0].Embedding) {
		log.Printf("Embedding error: model returned non-finite values")
		respondError(w, http.StatusInternalServerError, errEmbedFailed)
		return
	}

	log.Printf("Embedded %s %dx%d: face score %.3f",
		format, img.Bounds().Dx(), img.Bounds().Dy(), faces[0].Score)

	respondJSON(w, http.StatusOK, model.EmbeddingResponse{Embedding: faces[0].Embedding})
}

func finite(v []float32) bool {
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}
