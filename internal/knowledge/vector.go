package knowledge

import (
	"fmt"
	"math"
)

// CosineSimilarity returns dot(a,b) / (‖a‖·‖b‖), in [-1, 1].
//
// Comparing vectors of differing length fails with ErrDimensionMismatch.
// If either vector has zero norm the similarity is 0; this function never
// divides by zero.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
