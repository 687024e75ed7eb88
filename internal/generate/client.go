package generate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Config assembles a Client.
type Config struct {
	// Provider is the live generation capability. When nil the client runs
	// in degraded placeholder mode.
	Provider Provider

	// SystemInstruction is the standing instruction block prepended to every
	// prompt. Empty selects DefaultSystemInstruction.
	SystemInstruction string

	Scheduler SchedulerConfig
	Retry     RetryConfig

	Logger *slog.Logger
}

// DefaultSystemInstruction is the standing study-assistant instruction.
const DefaultSystemInstruction = "You are a study assistant. Answer the student's questions clearly and " +
	"concisely. When course material is provided, ground your answer in it and say so when it does not " +
	"cover the question."

// Client is the resilient wrapper around the text-generation capability.
//
// Client is safe for concurrent use; the scheduler bounds total outstanding
// provider calls process-wide.
type Client struct {
	provider Provider
	system   string
	sched    *scheduler
	retry    RetryConfig
	logger   *slog.Logger
	degraded bool
}

// NewClient creates a Client. A nil cfg.Provider selects degraded mode.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	provider := cfg.Provider
	degraded := provider == nil
	if degraded {
		provider = degradedProvider{}
		logger.Warn("no generation provider configured, running in degraded placeholder mode")
	}

	system := cfg.SystemInstruction
	if system == "" {
		system = DefaultSystemInstruction
	}

	return &Client{
		provider: provider,
		system:   system,
		sched:    newScheduler(cfg.Scheduler),
		retry:    cfg.Retry.withDefaults(),
		logger:   logger,
		degraded: degraded,
	}
}

// Degraded reports whether the client runs without provider credentials.
// Exposed for operational logging only; the call contract is identical.
func (c *Client) Degraded() bool {
	return c.degraded
}

// Generate performs a single-shot generation call.
//
// groundingContext is appended to the system block only when non-empty.
// Failures map onto the package's sentinel errors; see errors.go.
func (c *Client) Generate(ctx context.Context, userMessage, groundingContext string, history []Turn) (Result, error) {
	req := Request{
		System:           c.system,
		GroundingContext: groundingContext,
		History:          history,
		UserMessage:      userMessage,
	}

	var result Result
	err := c.withRetry(ctx, false, func(ctx context.Context) error {
		var callErr error
		result, callErr = c.provider.Generate(ctx, req)
		return callErr
	})
	if err != nil {
		return Result{}, err
	}

	if strings.TrimSpace(result.Content) == "" {
		return Result{}, fmt.Errorf("%w: provider returned empty content", ErrInvalidResponse)
	}
	return result, nil
}

// GenerateStream starts a streaming generation call.
//
// Retry applies to establishing the stream; a failure after fragments have
// been delivered is surfaced through the Stream itself. The scheduler slot
// stays claimed until the stream's terminal event, so in-flight streams count
// toward the concurrency bound like any other outstanding provider call.
func (c *Client) GenerateStream(ctx context.Context, userMessage, groundingContext string, history []Turn) (Stream, error) {
	req := Request{
		System:           c.system,
		GroundingContext: groundingContext,
		History:          history,
		UserMessage:      userMessage,
	}

	var stream Stream
	err := c.withRetry(ctx, true, func(ctx context.Context) error {
		var callErr error
		stream, callErr = c.provider.GenerateStream(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return &heldStream{inner: stream, release: c.sched.release}, nil
}

// heldStream carries a scheduler slot across a stream's lifetime, releasing
// it exactly once at the terminal Recv or at Close, whichever comes first.
type heldStream struct {
	inner   Stream
	release func()
	once    sync.Once
}

func (h *heldStream) Recv() (string, bool, error) {
	frag, ok, err := h.inner.Recv()
	if !ok {
		h.once.Do(h.release)
	}
	return frag, ok, err
}

func (h *heldStream) Close() {
	h.inner.Close()
	h.once.Do(h.release)
}

// withRetry runs call through the scheduler, retrying rate-limit signals with
// exponential backoff plus jitter up to the configured attempt count.
//
// Each attempt claims its own scheduler slot so retries queue behind other
// callers like any outbound call. With holdSlot, the slot claimed by the
// successful attempt is left for the caller to release.
func (c *Client) withRetry(ctx context.Context, holdSlot bool, call func(context.Context) error) error {
	var lastErr error
	start := time.Now()

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if err := c.sched.acquire(ctx); err != nil {
			return err
		}
		err := call(ctx)
		if err != nil || !holdSlot {
			c.sched.release()
		}

		if err == nil {
			if attempt > 0 {
				c.logger.Debug("generation call succeeded after retries",
					"attempts", attempt+1, "elapsed", time.Since(start))
			}
			return nil
		}
		lastErr = err

		switch {
		case isAuthError(err):
			return fmt.Errorf("%w: %w", ErrMisconfigured, err)
		case isRateLimitError(err):
			// Retryable; fall through to backoff.
		default:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		if attempt == c.retry.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(c.retry, attempt)
		c.logger.Debug("rate limited, backing off",
			"attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("canceled during backoff: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%w: %d attempts exhausted: %w", ErrRateLimited, c.retry.MaxAttempts, lastErr)
}
