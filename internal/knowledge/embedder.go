package knowledge

import "context"

// Embedding is the result of embedding one text.
type Embedding struct {
	// Vector has fixed dimensionality determined by the embedding model.
	Vector []float32

	// TokenCount is the provider's token accounting for the input text.
	TokenCount int
}

// Embedder turns text into a fixed-length vector for similarity comparison.
// Following Go best practices: the interface is defined by the consumer, not
// the provider (similar to io.Reader, http.RoundTripper).
//
// The gemini package provides the production implementation; tests inject
// deterministic fakes.
type Embedder interface {
	Embed(ctx context.Context, text string) (Embedding, error)
}
