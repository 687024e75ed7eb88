package generate

import "context"

// Provider is the raw remote text-generation capability the Client wraps.
// Implementations return untranslated provider errors; the Client owns
// classification, scheduling and retries.
//
// The gemini package provides the live implementation; degradedProvider backs
// credential-less operation; tests inject fakes.
type Provider interface {
	// Generate performs a single-shot call.
	Generate(ctx context.Context, req Request) (Result, error)

	// GenerateStream starts a streaming call. The returned Stream must stop
	// producing promptly when ctx is canceled or Close is called.
	GenerateStream(ctx context.Context, req Request) (Stream, error)
}
