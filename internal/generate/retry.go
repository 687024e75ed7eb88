package generate

import (
	"math/rand/v2"
	"strings"
	"time"
)

// RetryConfig configures backoff for rate-limited provider calls.
type RetryConfig struct {
	MaxAttempts     int           // Total attempts including the first
	InitialInterval time.Duration // First backoff interval
	MaxInterval     time.Duration // Backoff ceiling
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}
	return cfg
}

// Error classification by substring match.
//
// NOTE: String matching is used because provider SDKs do not expose typed
// errors for these failure classes. Matched case-insensitively against
// err.Error().
var (
	rateLimitPatterns = []string{"rate limit", "quota exceeded", "resource exhausted", "429"}
	authPatterns      = []string{"api key", "unauthenticated", "unauthorized", "permission denied", "401", "403"}
)

// isRateLimitError reports whether err is a rate-limit signal from the provider.
func isRateLimitError(err error) bool {
	return err != nil && containsAny(err.Error(), rateLimitPatterns)
}

// isAuthError reports whether err is an authentication or configuration failure.
func isAuthError(err error) bool {
	return err != nil && containsAny(err.Error(), authPatterns)
}

func containsAny(s string, substrs []string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// backoffDelay computes the exponential backoff for the given zero-based
// attempt, with up to 25% random jitter added so retry storms decorrelate.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.InitialInterval
	for range attempt {
		delay *= 2
		if delay >= cfg.MaxInterval {
			delay = cfg.MaxInterval
			break
		}
	}
	jitter := time.Duration(rand.Int64N(int64(delay)/4 + 1))
	return delay + jitter
}
