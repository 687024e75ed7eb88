package generate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Scheduler defaults.
const (
	// DefaultMaxConcurrent bounds provider calls in flight process-wide.
	DefaultMaxConcurrent = 2

	// DefaultMinSpacing is the minimum gap between consecutive call starts.
	DefaultMinSpacing = 200 * time.Millisecond

	// DefaultQueueCapacity bounds calls waiting for a slot. Enqueuing beyond
	// this is rejected immediately rather than queued indefinitely.
	DefaultQueueCapacity = 8
)

// SchedulerConfig tunes the outbound call scheduler.
// Zero values select the defaults above.
type SchedulerConfig struct {
	MaxConcurrent int
	MinSpacing    time.Duration
	QueueCapacity int
}

func (cfg SchedulerConfig) withDefaults() SchedulerConfig {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MinSpacing <= 0 {
		cfg.MinSpacing = DefaultMinSpacing
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	return cfg
}

// scheduler serializes access to the provider: at most MaxConcurrent calls in
// flight, call starts spaced at least MinSpacing apart, and at most
// QueueCapacity callers waiting for a slot.
//
// scheduler is safe for concurrent use.
type scheduler struct {
	cfg     SchedulerConfig
	slots   chan struct{}
	spacing *rate.Limiter
	pending atomic.Int64 // in flight + queued
}

func newScheduler(cfg SchedulerConfig) *scheduler {
	cfg = cfg.withDefaults()
	return &scheduler{
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.MaxConcurrent),
		spacing: rate.NewLimiter(rate.Every(cfg.MinSpacing), 1),
	}
}

// acquire claims a call slot or fails fast.
//
// Queue overflow is reported as ErrRateLimited so callers see one retryable
// condition for both provider overload and local backpressure.
func (s *scheduler) acquire(ctx context.Context) error {
	if s.pending.Add(1) > int64(s.cfg.MaxConcurrent+s.cfg.QueueCapacity) {
		s.pending.Add(-1)
		return fmt.Errorf("%w: pending call queue full", ErrRateLimited)
	}

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		s.pending.Add(-1)
		return fmt.Errorf("waiting for call slot: %w", ctx.Err())
	}

	if err := s.spacing.Wait(ctx); err != nil {
		s.release()
		return fmt.Errorf("waiting for call spacing: %w", err)
	}
	return nil
}

// release returns a slot claimed by acquire.
func (s *scheduler) release() {
	<-s.slots
	s.pending.Add(-1)
}
