package client

import "math"

// Verdict classifies how likely two face embeddings belong to the same person.
type Verdict string

const (
	VerdictMatch    Verdict = "match"
	VerdictPossible Verdict = "possible"
	VerdictUnknown  Verdict = "unknown"
)

const (
	matchThreshold    = 0.5
	possibleThreshold = 0.4
)

// CosineSimilarity scores two embeddings in [-1, 1]. Raw embeddings can be
// passed directly since the score does not depend on their length. Mismatched,
// empty or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, sumA, sumB float64
	for i, x := range a {
		y := float64(b[i])
		dot += float64(x) * y
		sumA += float64(x) * float64(x)
		sumB += y * y
	}
	if sumA == 0 || sumB == 0 {
		return 0
	}
	return dot / math.Sqrt(sumA*sumB)
}

// Classify maps a cosine similarity score onto a Verdict. The score is rounded
// to three decimals first, so 0.5004 is still only a possible match.
func Classify(score float64) Verdict {
	score = math.Round(score*1000) / 1000
	switch {
	case score > matchThreshold:
		return VerdictMatch
	case score > possibleThreshold:
		return VerdictPossible
	default:
		return VerdictUnknown
	}
}
