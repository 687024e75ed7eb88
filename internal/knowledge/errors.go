package knowledge

import "errors"

// Sentinel errors for knowledge operations, checked with errors.Is().
var (
	// ErrDimensionMismatch indicates two vectors of differing length were compared.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyEmbedding indicates the embedding capability returned no vector.
	ErrEmptyEmbedding = errors.New("empty embedding returned")
)
