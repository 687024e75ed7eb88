package contextcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/koopa0/study-assistant/internal/conversation"
	"github.com/koopa0/study-assistant/internal/log"
)

// fakeLoader serves a fixed message tail and counts loads. An optional gate
// blocks loads until released, for exercising single-flight.
type fakeLoader struct {
	messages map[uuid.UUID][]*conversation.Message
	err      error
	loads    atomic.Int64
	gate     chan struct{}
}

func (f *fakeLoader) RecentMessages(_ context.Context, conversationID uuid.UUID, n int) ([]*conversation.Message, error) {
	f.loads.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	msgs := f.messages[conversationID]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

func messagesOf(pairs ...string) []*conversation.Message {
	var msgs []*conversation.Message
	for i := 0; i+1 < len(pairs); i += 2 {
		msgs = append(msgs, &conversation.Message{
			Role:    conversation.Role(pairs[i]),
			Content: pairs[i+1],
		})
	}
	return msgs
}

func TestGetReconstructsOnMiss(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	loader := &fakeLoader{messages: map[uuid.UUID][]*conversation.Message{
		id: messagesOf("user", "what is a monad", "assistant", "a monoid in the category of endofunctors"),
	}}
	cache := New(loader, log.NewNop())

	window, err := cache.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("len(window) = %d, want 2", len(window))
	}
	if window[0].Role != conversation.RoleUser || window[0].Content != "what is a monad" {
		t.Errorf("window[0] = %+v", window[0])
	}
	if got := loader.loads.Load(); got != 1 {
		t.Errorf("loads = %d, want 1", got)
	}

	// Second Get is a hit; the loader is not consulted again.
	if _, err := cache.Get(context.Background(), id); err != nil {
		t.Fatalf("Get() second call error = %v", err)
	}
	if got := loader.loads.Load(); got != 1 {
		t.Errorf("loads after hit = %d, want 1", got)
	}
}

func TestGetPropagatesLoaderError(t *testing.T) {
	t.Parallel()

	loadErr := errors.New("store offline")
	cache := New(&fakeLoader{err: loadErr}, log.NewNop())

	if _, err := cache.Get(context.Background(), uuid.New()); !errors.Is(err, loadErr) {
		t.Fatalf("Get() error = %v, want wrapped %v", err, loadErr)
	}
}

func TestGetSingleFlight(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	loader := &fakeLoader{
		messages: map[uuid.UUID][]*conversation.Message{id: messagesOf("user", "hi")},
		gate:     make(chan struct{}),
	}
	cache := New(loader, log.NewNop())

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = cache.Get(context.Background(), id)
		}()
	}
	close(loader.gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: Get() error = %v", i, err)
		}
	}
	// All concurrent misses share one reconstruction; allow a second load for
	// a caller that raced ahead of the others' Do join.
	if got := loader.loads.Load(); got > 2 {
		t.Errorf("loads = %d, want at most 2", got)
	}
}

func TestSetThenGet(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	cache := New(&fakeLoader{}, log.NewNop())

	cache.Set(id, []Turn{{Role: conversation.RoleUser, Content: "seed"}})

	window, err := cache.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(window) != 1 || window[0].Content != "seed" {
		t.Fatalf("window = %+v", window)
	}
}

func TestSetCopiesInput(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	cache := New(&fakeLoader{}, log.NewNop())

	input := []Turn{{Role: conversation.RoleUser, Content: "original"}}
	cache.Set(id, input)
	input[0].Content = "mutated after set"

	window, _ := cache.Get(context.Background(), id)
	if window[0].Content != "original" {
		t.Errorf("cached content = %q, caller mutation leaked into cache", window[0].Content)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	cache := New(&fakeLoader{}, log.NewNop())
	cache.Set(id, []Turn{{Role: conversation.RoleUser, Content: "original"}})

	first, _ := cache.Get(context.Background(), id)
	first[0].Content = "scribbled"

	second, _ := cache.Get(context.Background(), id)
	if second[0].Content != "original" {
		t.Errorf("cached content = %q, Get result aliases cache state", second[0].Content)
	}
}

// Resetting or rewriting one conversation's window must never disturb
// another's, even when both were seeded from the same backing slice.
func TestResetDoesNotAliasOtherConversations(t *testing.T) {
	t.Parallel()

	idA, idB := uuid.New(), uuid.New()
	cache := New(&fakeLoader{}, log.NewNop())

	shared := []Turn{
		{Role: conversation.RoleUser, Content: "shared question"},
		{Role: conversation.RoleAssistant, Content: "shared answer"},
	}
	cache.Set(idA, shared)
	cache.Set(idB, shared)

	cache.Set(idB, nil)
	cache.Invalidate(idB)

	window, err := cache.Get(context.Background(), idA)
	if err != nil {
		t.Fatalf("Get(A) error = %v", err)
	}
	if len(window) != 2 || window[0].Content != "shared question" {
		t.Fatalf("conversation A window = %+v, damaged by resetting B", window)
	}
}

func TestAppendTrimsToWindowSize(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	cache := New(&fakeLoader{}, log.NewNop())

	var seed []Turn
	for i := range WindowSize {
		seed = append(seed, Turn{Role: conversation.RoleUser, Content: fmt.Sprintf("turn %d", i)})
	}
	cache.Set(id, seed)

	cache.Append(id,
		Turn{Role: conversation.RoleUser, Content: "newest question"},
		Turn{Role: conversation.RoleAssistant, Content: "newest answer"},
	)

	window, _ := cache.Get(context.Background(), id)
	if len(window) != WindowSize {
		t.Fatalf("len(window) = %d, want %d", len(window), WindowSize)
	}
	if window[len(window)-1].Content != "newest answer" {
		t.Errorf("last turn = %q, want newest answer", window[len(window)-1].Content)
	}
	if window[0].Content != "turn 2" {
		t.Errorf("first turn = %q, want oldest two evicted", window[0].Content)
	}
}

func TestAppendOnAbsentEntryIsNoop(t *testing.T) {
	t.Parallel()

	cache := New(&fakeLoader{}, log.NewNop())
	cache.Append(uuid.New(), Turn{Role: conversation.RoleUser, Content: "hello"})

	if cache.Len() != 0 {
		t.Errorf("Len() = %d, want 0", cache.Len())
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	loader := &fakeLoader{messages: map[uuid.UUID][]*conversation.Message{
		id: messagesOf("user", "hi"),
	}}
	cache := New(loader, log.NewNop())

	if _, err := cache.Get(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	cache.Invalidate(id)
	if _, err := cache.Get(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if got := loader.loads.Load(); got != 2 {
		t.Errorf("loads = %d, want 2 after invalidation", got)
	}
}
