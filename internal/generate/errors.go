package generate

import "errors"

// Sentinel errors for generation calls, checked with errors.Is().
//
// The taxonomy maps directly onto caller-visible behavior: ErrRateLimited is
// retryable by the caller, ErrMisconfigured is fatal until an operator fixes
// configuration, and the rest are surfaced as "assistant unavailable".
var (
	// ErrRateLimited indicates the provider rejected the call for overload
	// after local retries were exhausted, or the local pending queue is full.
	ErrRateLimited = errors.New("generation rate limited")

	// ErrMisconfigured indicates missing or invalid provider credentials.
	// Not transient: retrying cannot help.
	ErrMisconfigured = errors.New("generation provider misconfigured")

	// ErrUnavailable indicates a transient provider or network failure.
	ErrUnavailable = errors.New("generation provider unavailable")

	// ErrInvalidResponse indicates the provider returned empty or malformed output.
	ErrInvalidResponse = errors.New("invalid generation response")
)
