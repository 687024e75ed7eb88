package generate

import "context"

// Stream is a lazy, finite, non-restartable sequence of text fragments from
// one generation call, consumable by a single reader.
//
// Recv returns (fragment, ok, err): ok=false with err=nil means the stream
// completed normally; ok=false with a non-nil err means it failed after the
// fragments already delivered. Nothing already delivered is ever retracted.
// Close releases provider-side resources; stopping consumption early via
// Close is not an error, but a Recv after an early Close reports
// context.Canceled rather than clean completion.
type Stream interface {
	// Recv blocks for the next fragment. ok is false when the stream is done,
	// in which case err reports whether it ended normally (nil) or failed.
	Recv() (fragment string, ok bool, err error)

	// Close stops fragment production promptly and releases resources.
	// Safe to call multiple times and after exhaustion.
	Close()
}

// NewStream adapts a producer goroutine to the Stream contract, for use by
// Provider implementations.
//
// Protocol: the producer sends fragments on frags, closes frags when no more
// will come, then sends exactly one terminal error (nil for normal
// completion) on done — which must be buffered — and exits. The producer must
// stop promptly when its context is canceled; cancel is wired to Close.
func NewStream(frags <-chan string, done <-chan error, cancel context.CancelFunc) Stream {
	return newChanStream(frags, done, cancel)
}

// chanStream adapts a producer goroutine to the Stream contract.
//
// Protocol: the producer sends fragments on frags, closes frags when no more
// will come, then sends exactly one terminal error (nil for normal
// completion) on the buffered done channel and exits. The producer must stop
// promptly when its context is canceled; cancel is wired to Close.
type chanStream struct {
	frags  <-chan string
	done   <-chan error
	cancel context.CancelFunc

	err      error
	finished bool
}

func newChanStream(frags <-chan string, done <-chan error, cancel context.CancelFunc) *chanStream {
	return &chanStream{frags: frags, done: done, cancel: cancel}
}

func (s *chanStream) Recv() (string, bool, error) {
	if s.finished {
		return "", false, s.err
	}
	frag, ok := <-s.frags
	if ok {
		return frag, true, nil
	}
	s.finished = true
	s.err = <-s.done
	return "", false, s.err
}

func (s *chanStream) Close() {
	s.cancel()
	if s.finished {
		return
	}
	s.finished = true
	// Abandonment is not clean exhaustion; a Recv after Close must not look
	// like the stream completed normally.
	s.err = context.Canceled
	// Drain the rest so the producer goroutine can exit; done is buffered.
	go func() {
		for range s.frags {
		}
	}()
}
