// Package generate wraps the remote text-generation capability behind a
// resilient client.
//
// Every outbound call passes through a scheduler that bounds global
// concurrency, enforces minimum inter-call spacing, and rejects work beyond a
// finite pending queue. Rate-limit signals are retried with exponential
// backoff plus jitter up to a bounded attempt count; authentication failures
// surface immediately as ErrMisconfigured and are never retried.
//
// When no provider credentials are configured the client runs in degraded
// mode: canned, clearly labeled placeholder replies through the exact same
// call contract, so callers cannot structurally distinguish degraded from
// live operation.
package generate
