package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/koopa0/study-assistant/internal/contextcache"
	"github.com/koopa0/study-assistant/internal/conversation"
	"github.com/koopa0/study-assistant/internal/generate"
	"github.com/koopa0/study-assistant/internal/knowledge"
	"github.com/koopa0/study-assistant/internal/log"
)

type fakeStream struct {
	fragments []string
	terminal  error
	pos       int
	closed    bool
}

func (f *fakeStream) Recv() (string, bool, error) {
	if f.pos < len(f.fragments) {
		frag := f.fragments[f.pos]
		f.pos++
		return frag, true, nil
	}
	return "", false, f.terminal
}

func (f *fakeStream) Close() { f.closed = true }

type fakeGenerator struct {
	result    generate.Result
	err       error
	fragments []string
	streamErr error

	calls         int
	lastMessage   string
	lastGrounding string
	lastHistory   []generate.Turn
	lastStream    *fakeStream
}

func (g *fakeGenerator) record(userMessage, grounding string, history []generate.Turn) {
	g.calls++
	g.lastMessage = userMessage
	g.lastGrounding = grounding
	g.lastHistory = history
}

func (g *fakeGenerator) Generate(_ context.Context, userMessage, grounding string, history []generate.Turn) (generate.Result, error) {
	g.record(userMessage, grounding, history)
	if g.err != nil {
		return generate.Result{}, g.err
	}
	return g.result, nil
}

func (g *fakeGenerator) GenerateStream(_ context.Context, userMessage, grounding string, history []generate.Turn) (generate.Stream, error) {
	g.record(userMessage, grounding, history)
	if g.err != nil {
		return nil, g.err
	}
	g.lastStream = &fakeStream{fragments: g.fragments, terminal: g.streamErr}
	return g.lastStream, nil
}

type fakeSearcher struct {
	results []knowledge.Result
	err     error
}

func (f *fakeSearcher) SearchSimilar(_ context.Context, _ string, _ ...knowledge.SearchOption) ([]knowledge.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type testHarness struct {
	store *conversation.MemoryStore
	cache *contextcache.Cache
	gen   *fakeGenerator
	svc   *Service
}

func newHarness(t *testing.T, searcher Searcher, gen *fakeGenerator) *testHarness {
	t.Helper()
	store := conversation.NewMemoryStore()
	cache := contextcache.New(store, log.NewNop())
	return &testHarness{
		store: store,
		cache: cache,
		gen:   gen,
		svc:   NewService(store, searcher, cache, gen, log.NewNop()),
	}
}

func TestSendMessageCreatesConversation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, &fakeGenerator{result: generate.Result{
		Content: "¡Hola! ¿En qué puedo ayudarte?", TokensUsed: 12, Model: "test-model",
	}})
	studentID := uuid.New()

	result, err := h.svc.SendMessage(context.Background(), studentID, "Hola", uuid.Nil)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if result.UserMessage.Content != "Hola" {
		t.Errorf("user message content = %q", result.UserMessage.Content)
	}
	if result.UserMessage.Role != conversation.RoleUser {
		t.Errorf("user message role = %q", result.UserMessage.Role)
	}
	if result.AssistantMessage.Role != conversation.RoleAssistant {
		t.Errorf("assistant message role = %q", result.AssistantMessage.Role)
	}
	if result.AssistantMessage.Metadata.Model != "test-model" {
		t.Errorf("assistant metadata model = %q", result.AssistantMessage.Metadata.Model)
	}

	conv, err := h.store.Get(context.Background(), result.ConversationID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !conv.IsActive {
		t.Error("new conversation is not active")
	}
	if conv.Title != "Hola" {
		t.Errorf("title = %q, want derived from first message", conv.Title)
	}
	if conv.MessageCount != 2 {
		t.Errorf("messageCount = %d, want 2", conv.MessageCount)
	}

	msgs, total, err := h.store.Messages(context.Background(), result.ConversationID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Fatalf("persisted messages = %d, want 2", total)
	}
	if msgs[0].Role != conversation.RoleUser || msgs[1].Role != conversation.RoleAssistant {
		t.Errorf("message order = %q, %q", msgs[0].Role, msgs[1].Role)
	}
}

func TestSendMessageContinuesConversation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, &fakeGenerator{result: generate.Result{Content: "answer"}})
	studentID := uuid.New()
	ctx := context.Background()

	first, err := h.svc.SendMessage(ctx, studentID, "first question", uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.svc.SendMessage(ctx, studentID, "follow-up", first.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if second.ConversationID != first.ConversationID {
		t.Fatal("follow-up created a new conversation")
	}

	// The second prompt carries the first exchange as history, without the
	// pending user turn duplicated.
	wantHistory := []generate.Turn{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "answer"},
	}
	if len(h.gen.lastHistory) != len(wantHistory) {
		t.Fatalf("history length = %d, want %d: %+v", len(h.gen.lastHistory), len(wantHistory), h.gen.lastHistory)
	}
	for i, want := range wantHistory {
		if h.gen.lastHistory[i] != want {
			t.Errorf("history[%d] = %+v, want %+v", i, h.gen.lastHistory[i], want)
		}
	}

	conv, _ := h.store.Get(ctx, first.ConversationID)
	if conv.MessageCount != 4 {
		t.Errorf("messageCount = %d, want 4", conv.MessageCount)
	}
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, &fakeGenerator{result: generate.Result{Content: "x"}})
	if _, err := h.svc.SendMessage(context.Background(), uuid.New(), "   ", uuid.Nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("SendMessage() error = %v, want ErrEmptyMessage", err)
	}
}

func TestSendMessageOwnership(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, &fakeGenerator{result: generate.Result{Content: "x"}})
	ctx := context.Background()

	owner := uuid.New()
	result, err := h.svc.SendMessage(ctx, owner, "mine", uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := h.svc.SendMessage(ctx, uuid.New(), "intruding", result.ConversationID); !errors.Is(err, conversation.ErrForbidden) {
		t.Errorf("other student's send error = %v, want ErrForbidden", err)
	}
	if _, err := h.svc.SendMessage(ctx, owner, "hi", uuid.New()); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("unknown conversation error = %v, want ErrNotFound", err)
	}
}

func TestSendMessageGrounding(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{results: []knowledge.Result{
		{Content: "Photosynthesis converts light into chemical energy.", SourceLabel: "bio-101.pdf", Score: 0.9},
		{Content: "Chlorophyll absorbs red and blue light.", Score: 0.7},
	}}
	h := newHarness(t, searcher, &fakeGenerator{result: generate.Result{Content: "answer"}})

	if _, err := h.svc.SendMessage(context.Background(), uuid.New(), "how does photosynthesis work?", uuid.Nil); err != nil {
		t.Fatal(err)
	}

	want := "[bio-101.pdf]\nPhotosynthesis converts light into chemical energy.\n\nChlorophyll absorbs red and blue light."
	if h.gen.lastGrounding != want {
		t.Errorf("grounding = %q, want %q", h.gen.lastGrounding, want)
	}
}

func TestSendMessageRetrievalFailureIsRecovered(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{err: errors.New("vector store offline")}
	h := newHarness(t, searcher, &fakeGenerator{result: generate.Result{Content: "answer"}})

	if _, err := h.svc.SendMessage(context.Background(), uuid.New(), "question", uuid.Nil); err != nil {
		t.Fatalf("SendMessage() error = %v, retrieval failure must not surface", err)
	}
	if h.gen.lastGrounding != "" {
		t.Errorf("grounding = %q, want empty after retrieval failure", h.gen.lastGrounding)
	}
}

func TestSendMessageGenerationFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, &fakeGenerator{err: generate.ErrUnavailable})
	ctx := context.Background()
	studentID := uuid.New()

	_, err := h.svc.SendMessage(ctx, studentID, "question", uuid.Nil)
	if !errors.Is(err, generate.ErrUnavailable) {
		t.Fatalf("SendMessage() error = %v, want ErrUnavailable", err)
	}

	// The user message is persisted even when generation fails; no assistant
	// message is, and the counters stay untouched.
	convs, _, listErr := h.store.ListByStudent(ctx, studentID, 10, 0)
	if listErr != nil || len(convs) != 1 {
		t.Fatalf("conversations = %d (err %v), want 1", len(convs), listErr)
	}
	msgs, total, _ := h.store.Messages(ctx, convs[0].ID, 10, 0)
	if total != 1 || msgs[0].Role != conversation.RoleUser {
		t.Errorf("persisted messages = %d, want just the user message", total)
	}
	if convs[0].MessageCount != 0 {
		t.Errorf("messageCount = %d, want 0 for a failed exchange", convs[0].MessageCount)
	}
}

func TestStartNewConversationDeactivatesOthers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, &fakeGenerator{})
	ctx := context.Background()
	studentID := uuid.New()

	first, err := h.svc.StartNewConversation(ctx, studentID, "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.svc.StartNewConversation(ctx, studentID, "exam prep for linear algebra")
	if err != nil {
		t.Fatal(err)
	}

	got1, _ := h.store.Get(ctx, first.ID)
	got2, _ := h.store.Get(ctx, second.ID)
	if got1.IsActive {
		t.Error("first conversation still active after starting a second")
	}
	if !got2.IsActive {
		t.Error("second conversation not active")
	}

	// The second conversation's window is freshly allocated and independently
	// mutable from the first's.
	w2, err := h.cache.Get(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(w2) != 1 || w2[0].Role != conversation.RoleSystem {
		t.Fatalf("seeded window = %+v, want one system turn", w2)
	}
	h.cache.Set(second.ID, nil)
	w1, err := h.cache.Get(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(w1) != 0 {
		t.Errorf("first window = %+v, want empty and unaffected", w1)
	}
}

func TestStreamMessageDeliversAndPersists(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, &fakeGenerator{fragments: []string{"The ", "answer ", "is 42."}})
	ctx := context.Background()
	studentID := uuid.New()

	ms, err := h.svc.StreamMessage(ctx, studentID, "what is the answer?", uuid.Nil)
	if err != nil {
		t.Fatalf("StreamMessage() error = %v", err)
	}
	defer ms.Close()

	var got string
	for {
		frag, ok, err := ms.Recv()
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		if !ok {
			break
		}
		got += frag
	}
	if got != "The answer is 42." {
		t.Errorf("accumulated = %q", got)
	}

	msg := ms.Message()
	if msg == nil {
		t.Fatal("Message() = nil after clean exhaustion")
	}
	if msg.Content != "The answer is 42." {
		t.Errorf("persisted content = %q", msg.Content)
	}

	conv, _ := h.store.Get(ctx, ms.ConversationID())
	if conv.MessageCount != 2 {
		t.Errorf("messageCount = %d, want 2", conv.MessageCount)
	}
	_, total, _ := h.store.Messages(ctx, ms.ConversationID(), 10, 0)
	if total != 2 {
		t.Errorf("persisted messages = %d, want 2", total)
	}
}

func TestStreamMessageFailureMidFlight(t *testing.T) {
	t.Parallel()

	streamErr := errors.New("provider dropped the stream")
	h := newHarness(t, nil, &fakeGenerator{fragments: []string{"partial "}, streamErr: streamErr})
	ctx := context.Background()

	ms, err := h.svc.StreamMessage(ctx, uuid.New(), "question", uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ms.Close()

	frag, ok, err := ms.Recv()
	if err != nil || !ok || frag != "partial " {
		t.Fatalf("first Recv() = (%q, %v, %v)", frag, ok, err)
	}
	if _, ok, err := ms.Recv(); ok || !errors.Is(err, streamErr) {
		t.Fatalf("terminal Recv() = (ok=%v, err=%v), want stream failure", ok, err)
	}

	if ms.Message() != nil {
		t.Error("Message() non-nil for a failed stream")
	}
	_, total, _ := h.store.Messages(ctx, ms.ConversationID(), 10, 0)
	if total != 1 {
		t.Errorf("persisted messages = %d, want just the user message", total)
	}
}

func TestStreamMessageAbandoned(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, &fakeGenerator{fragments: []string{"a ", "b ", "c"}})
	ctx := context.Background()

	ms, err := h.svc.StreamMessage(ctx, uuid.New(), "question", uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := ms.Recv(); err != nil {
		t.Fatal(err)
	}
	ms.Close()

	if !h.gen.lastStream.closed {
		t.Error("abandoning the reader did not close the provider stream")
	}
	if ms.Message() != nil {
		t.Error("Message() non-nil for an abandoned stream")
	}
	_, total, _ := h.store.Messages(ctx, ms.ConversationID(), 10, 0)
	if total != 1 {
		t.Errorf("persisted messages = %d, want just the user message", total)
	}
	conv, _ := h.store.Get(ctx, ms.ConversationID())
	if conv.MessageCount != 0 {
		t.Errorf("messageCount = %d, want 0 for an abandoned stream", conv.MessageCount)
	}
}

func TestStreamMessageRecvAfterCloseDoesNotPersist(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, &fakeGenerator{fragments: []string{"partial ", "answer"}})
	ctx := context.Background()

	ms, err := h.svc.StreamMessage(ctx, uuid.New(), "question", uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := ms.Recv(); err != nil {
		t.Fatal(err)
	}
	ms.Close()

	// A caller that keeps pulling after abandoning must not trigger
	// persistence of the partial text.
	if frag, ok, err := ms.Recv(); ok || err != nil {
		t.Errorf("Recv after Close = (%q, %v, %v), want finished", frag, ok, err)
	}

	if ms.Message() != nil {
		t.Error("Message() non-nil after Recv following Close")
	}
	_, total, _ := h.store.Messages(ctx, ms.ConversationID(), 10, 0)
	if total != 1 {
		t.Errorf("persisted messages = %d, want just the user message", total)
	}
	conv, _ := h.store.Get(ctx, ms.ConversationID())
	if conv.MessageCount != 0 {
		t.Errorf("messageCount = %d, want 0 after abandoning the stream", conv.MessageCount)
	}
}

func TestHistoryPagination(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, &fakeGenerator{result: generate.Result{Content: "reply"}})
	ctx := context.Background()
	studentID := uuid.New()

	first, err := h.svc.SendMessage(ctx, studentID, "q1", uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, q := range []string{"q2", "q3"} {
		if _, err := h.svc.SendMessage(ctx, studentID, q, first.ConversationID); err != nil {
			t.Fatal(err)
		}
	}

	page, err := h.svc.History(ctx, studentID, first.ConversationID, 1, 4)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if page.Pagination.Total != 6 || page.Pagination.TotalPages != 2 {
		t.Errorf("pagination = %+v, want total 6 over 2 pages", page.Pagination)
	}
	if len(page.Messages) != 4 {
		t.Fatalf("page size = %d, want 4", len(page.Messages))
	}
	if page.Messages[0].Content != "q1" {
		t.Errorf("first message = %q, want ascending order", page.Messages[0].Content)
	}

	page2, err := h.svc.History(ctx, studentID, first.ConversationID, 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(page2.Messages) != 2 {
		t.Errorf("second page size = %d, want 2", len(page2.Messages))
	}

	if _, err := h.svc.History(ctx, uuid.New(), first.ConversationID, 1, 10); !errors.Is(err, conversation.ErrForbidden) {
		t.Errorf("other student's history error = %v, want ErrForbidden", err)
	}
}

func TestConversationsListing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, &fakeGenerator{result: generate.Result{Content: "reply"}})
	ctx := context.Background()
	studentID := uuid.New()

	if _, err := h.svc.SendMessage(ctx, studentID, "older", uuid.Nil); err != nil {
		t.Fatal(err)
	}
	newer, err := h.svc.SendMessage(ctx, studentID, "newer", uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}

	list, err := h.svc.Conversations(ctx, studentID, 1, 10)
	if err != nil {
		t.Fatalf("Conversations() error = %v", err)
	}
	if list.Pagination.Total != 2 || len(list.Conversations) != 2 {
		t.Fatalf("list = %d conversations, total %d, want 2", len(list.Conversations), list.Pagination.Total)
	}
	if list.Conversations[0].ID != newer.ConversationID {
		t.Error("conversations not ordered by most recent activity")
	}
}

func TestDeleteHistory(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, &fakeGenerator{result: generate.Result{Content: "reply"}})
	ctx := context.Background()
	studentID := uuid.New()

	result, err := h.svc.SendMessage(ctx, studentID, "to be deleted", uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}

	deleted, err := h.svc.DeleteHistory(ctx, studentID, result.ConversationID)
	if err != nil {
		t.Fatalf("DeleteHistory() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if _, err := h.store.Get(ctx, result.ConversationID); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("conversation still present after delete: %v", err)
	}
	if h.cache.Len() != 0 {
		t.Errorf("cache entries = %d, want 0 after delete", h.cache.Len())
	}

	if _, err := h.svc.DeleteHistory(ctx, studentID, uuid.New()); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("unknown conversation delete error = %v, want ErrNotFound", err)
	}
}
