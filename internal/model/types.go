package model

// Face is a single detection produced by the analyser. Faces are returned in
// descending Score order.
type Face struct {
	BBox      [4]float32    `json:"bbox"` // x1, y1, x2, y2 in source pixels
	Score     float32       `json:"det_score"`
	Landmarks [5][2]float32 `json:"kps"` // eyes, nose, mouth corners
	Embedding []float32     `json:"embedding,omitempty"`
}

// EmbeddingResponse is the success body of the embed endpoint.
type EmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// ErrorResponse is the failure body of every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports the loaded model.
type HealthResponse struct {
	Status       string `json:"status"`
	Model        string `json:"model,omitempty"`
	EmbeddingDim int    `json:"embedding_dim"`
	Engines      int    `json:"engines"`
}
