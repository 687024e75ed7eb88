// Package chat orchestrates the conversation flow: it resolves conversations,
// persists messages, assembles grounded prompts from retrieval and cached
// history, and drives the generation client in both single-shot and streaming
// form.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/study-assistant/internal/contextcache"
	"github.com/koopa0/study-assistant/internal/conversation"
	"github.com/koopa0/study-assistant/internal/generate"
	"github.com/koopa0/study-assistant/internal/knowledge"
)

// Searcher is the retrieval capability the orchestrator grounds prompts with.
// *knowledge.Index satisfies it.
type Searcher interface {
	SearchSimilar(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Generator is the resilient generation capability. *generate.Client
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, userMessage, groundingContext string, history []generate.Turn) (generate.Result, error)
	GenerateStream(ctx context.Context, userMessage, groundingContext string, history []generate.Turn) (generate.Stream, error)
}

// Service composes storage, retrieval, the context cache and the generation
// client into the send/stream operations.
type Service struct {
	store  conversation.Store
	index  Searcher // nil disables retrieval; prompts go out ungrounded
	cache  *contextcache.Cache
	client Generator
	logger *slog.Logger
}

// NewService wires an orchestrator. index may be nil.
func NewService(store conversation.Store, index Searcher, cache *contextcache.Cache, client Generator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		index:  index,
		cache:  cache,
		client: client,
		logger: logger,
	}
}

// SendResult is the outcome of a non-streaming send.
type SendResult struct {
	ConversationID   uuid.UUID
	UserMessage      *conversation.Message
	AssistantMessage *conversation.Message
}

// StartNewConversation creates a fresh active conversation for the student,
// deactivating all their others, and installs a freshly allocated cache
// window — seeded with a single system turn when initialContext is given.
func (s *Service) StartNewConversation(ctx context.Context, studentID uuid.UUID, initialContext string) (*conversation.Conversation, error) {
	if err := s.store.DeactivateAll(ctx, studentID); err != nil {
		return nil, fmt.Errorf("deactivating previous conversations: %w", err)
	}

	now := time.Now()
	conv := &conversation.Conversation{
		ID:            uuid.New(),
		StudentID:     studentID,
		Title:         "New conversation",
		IsActive:      true,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if err := s.store.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	var seed []contextcache.Turn
	if initialContext != "" {
		seed = []contextcache.Turn{{Role: conversation.RoleSystem, Content: initialContext}}
	}
	s.cache.Set(conv.ID, seed)

	s.logger.Info("started conversation", "conversation_id", conv.ID, "student_id", studentID)
	return conv, nil
}

// SendMessage runs the full non-streaming flow: resolve or create the
// conversation, persist the user message, retrieve grounding context
// (best-effort), assemble the prompt from the cached window, generate, then
// persist the assistant message and bump the conversation counters.
//
// conversationID == uuid.Nil creates a new conversation titled after the
// message.
func (s *Service) SendMessage(ctx context.Context, studentID uuid.UUID, message string, conversationID uuid.UUID) (*SendResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := s.resolveConversation(ctx, studentID, conversationID, message)
	if err != nil {
		return nil, err
	}

	userMsg := &conversation.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Role:           conversation.RoleUser,
		Content:        message,
		CreatedAt:      time.Now(),
	}
	if err := s.store.AddMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persisting user message: %w", err)
	}

	grounding := s.groundingContext(ctx, message)

	history, err := s.promptHistory(ctx, conv.ID, message)
	if err != nil {
		return nil, err
	}

	result, err := s.client.Generate(ctx, message, grounding, history)
	if err != nil {
		return nil, err
	}

	assistantMsg := &conversation.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Role:           conversation.RoleAssistant,
		Content:        result.Content,
		Metadata: conversation.Metadata{
			TokensUsed: result.TokensUsed,
			Model:      result.Model,
		},
		CreatedAt: time.Now(),
	}
	if err := s.finishExchange(ctx, conv.ID, userMsg, assistantMsg); err != nil {
		return nil, err
	}

	return &SendResult{
		ConversationID:   conv.ID,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	}, nil
}

// resolveConversation looks up an existing conversation (checking ownership)
// or creates a new active one titled after the first message.
func (s *Service) resolveConversation(ctx context.Context, studentID, conversationID uuid.UUID, firstMessage string) (*conversation.Conversation, error) {
	if conversationID != uuid.Nil {
		conv, err := s.store.Get(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if conv.StudentID != studentID {
			return nil, conversation.ErrForbidden
		}
		return conv, nil
	}

	if err := s.store.DeactivateAll(ctx, studentID); err != nil {
		return nil, fmt.Errorf("deactivating previous conversations: %w", err)
	}
	now := time.Now()
	conv := &conversation.Conversation{
		ID:            uuid.New(),
		StudentID:     studentID,
		Title:         conversation.TitleFromMessage(firstMessage),
		IsActive:      true,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if err := s.store.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	s.cache.Set(conv.ID, nil)
	return conv, nil
}

// groundingContext runs best-effort retrieval. Any failure degrades to an
// empty grounding block; retrieval never fails the conversation.
func (s *Service) groundingContext(ctx context.Context, query string) string {
	if s.index == nil {
		return ""
	}
	results, err := s.index.SearchSimilar(ctx, query)
	if err != nil {
		s.logger.Warn("retrieval failed, proceeding without grounding context", "error", err)
		return ""
	}
	return formatGrounding(results)
}

func formatGrounding(results []knowledge.Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if r.SourceLabel != "" {
			fmt.Fprintf(&b, "[%s]\n", r.SourceLabel)
		}
		b.WriteString(r.Content)
	}
	return b.String()
}

// promptHistory loads the cached window and converts it to prompt turns.
// A freshly reconstructed window may already end with the just-persisted user
// message; that trailing turn is dropped because the prompt appends the new
// user turn explicitly.
func (s *Service) promptHistory(ctx context.Context, conversationID uuid.UUID, pendingUserMessage string) ([]generate.Turn, error) {
	window, err := s.cache.Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading context window: %w", err)
	}
	if n := len(window); n > 0 {
		last := window[n-1]
		if last.Role == conversation.RoleUser && last.Content == pendingUserMessage {
			window = window[:n-1]
		}
	}

	history := make([]generate.Turn, len(window))
	for i, turn := range window {
		history[i] = generate.Turn{Role: string(turn.Role), Content: turn.Content}
	}
	return history, nil
}

// finishExchange persists the assistant message, bumps the conversation's
// counters by the two new messages, and folds both turns into the cached
// window.
func (s *Service) finishExchange(ctx context.Context, conversationID uuid.UUID, userMsg, assistantMsg *conversation.Message) error {
	if err := s.store.AddMessage(ctx, assistantMsg); err != nil {
		return fmt.Errorf("persisting assistant message: %w", err)
	}
	if err := s.store.RecordActivity(ctx, conversationID, 2); err != nil {
		return fmt.Errorf("recording conversation activity: %w", err)
	}
	s.cache.Append(conversationID,
		contextcache.Turn{Role: userMsg.Role, Content: userMsg.Content},
		contextcache.Turn{Role: assistantMsg.Role, Content: assistantMsg.Content},
	)
	return nil
}
