package generate

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
)

// DegradedModel is the model label attached to placeholder replies so
// degraded operation is observable by content, never by call contract.
const DegradedModel = "placeholder"

// degradedStreamDelay paces word fragments in degraded streaming mode.
const degradedStreamDelay = 40 * time.Millisecond

// placeholderReplies are the canned degraded-mode responses. Each is clearly
// labeled so nobody mistakes them for live model output.
var placeholderReplies = []string{
	"[Assistant running without a configured provider] I can't reach the language model right now, but your message was saved. Please ask your administrator to configure provider credentials.",
	"[Assistant running without a configured provider] This is a placeholder reply. Once provider credentials are configured I will answer using your course material.",
	"[Assistant running without a configured provider] I received your question and stored it in this conversation. Real answers require provider credentials to be configured.",
}

// degradedProvider serves canned replies when no credentials are configured.
// It honors the exact Provider contract of the live implementation.
type degradedProvider struct{}

var _ Provider = degradedProvider{}

func (degradedProvider) pick() string {
	return placeholderReplies[rand.IntN(len(placeholderReplies))]
}

// Generate returns one canned placeholder reply.
func (p degradedProvider) Generate(_ context.Context, _ Request) (Result, error) {
	reply := p.pick()
	return Result{
		Content:    reply,
		TokensUsed: len(strings.Fields(reply)),
		Model:      DegradedModel,
	}, nil
}

// GenerateStream emits a canned reply split into words, one fragment per word
// with a small fixed delay between fragments.
func (p degradedProvider) GenerateStream(ctx context.Context, _ Request) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	frags := make(chan string)
	done := make(chan error, 1)

	reply := p.pick()
	go func() {
		defer close(frags)
		words := strings.Fields(reply)
		for i, word := range words {
			if i > 0 {
				word = " " + word
				select {
				case <-time.After(degradedStreamDelay):
				case <-ctx.Done():
					done <- ctx.Err()
					return
				}
			}
			select {
			case frags <- word:
			case <-ctx.Done():
				done <- ctx.Err()
				return
			}
		}
		done <- nil
	}()

	return newChanStream(frags, done, cancel), nil
}
