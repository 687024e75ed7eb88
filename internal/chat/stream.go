package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/study-assistant/internal/conversation"
	"github.com/koopa0/study-assistant/internal/generate"
)

// MessageStream delivers one streamed exchange. The caller pulls fragments
// with Recv until it reports no more; on clean exhaustion the assistant
// message has been persisted and is available through Message.
//
// Closing the stream before exhaustion abandons it: fragment production stops
// and no assistant message is persisted. Fragments already delivered are never
// retracted.
type MessageStream struct {
	svc     *Service
	ctx     context.Context
	convID  uuid.UUID
	userMsg *conversation.Message

	inner generate.Stream
	text  strings.Builder

	finished bool
	msg      *conversation.Message
}

// StreamMessage runs the same flow as SendMessage up to the generation call,
// then returns a MessageStream over the provider's fragments instead of a
// completed result. Persistence of the assistant message happens only when
// the stream is consumed to clean exhaustion.
func (s *Service) StreamMessage(ctx context.Context, studentID uuid.UUID, message string, conversationID uuid.UUID) (*MessageStream, error) {
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

	stream, err := s.client.GenerateStream(ctx, message, grounding, history)
	if err != nil {
		return nil, err
	}

	return &MessageStream{
		svc:     s,
		ctx:     ctx,
		convID:  conv.ID,
		userMsg: userMsg,
		inner:   stream,
	}, nil
}

// ConversationID identifies the (possibly just created) conversation.
func (ms *MessageStream) ConversationID() uuid.UUID {
	return ms.convID
}

// UserMessage is the persisted user message that opened the exchange.
func (ms *MessageStream) UserMessage() *conversation.Message {
	return ms.userMsg
}

// Recv returns the next fragment. ok is false when the stream is finished;
// err is non-nil when it finished with a failure. The first Recv after clean
// provider exhaustion persists the assistant message and updates conversation
// counters, so a persistence failure also surfaces here.
func (ms *MessageStream) Recv() (fragment string, ok bool, err error) {
	if ms.finished {
		return "", false, nil
	}

	fragment, ok, err = ms.inner.Recv()
	if err != nil {
		ms.finished = true
		return "", false, err
	}
	if ok {
		ms.text.WriteString(fragment)
		return fragment, true, nil
	}

	ms.finished = true
	if err := ms.finalize(); err != nil {
		return "", false, err
	}
	return "", false, nil
}

// Close releases the underlying provider stream. Safe to call at any point,
// including after exhaustion. Closing before exhaustion marks the stream
// finished, so a later Recv cannot persist the partial text.
func (ms *MessageStream) Close() {
	ms.finished = true
	ms.inner.Close()
}

// Message is the persisted assistant message. Nil until the stream has been
// consumed to clean exhaustion.
func (ms *MessageStream) Message() *conversation.Message {
	return ms.msg
}

func (ms *MessageStream) finalize() error {
	content := ms.text.String()
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: provider stream produced no content", generate.ErrInvalidResponse)
	}

	assistantMsg := &conversation.Message{
		ID:             uuid.New(),
		ConversationID: ms.convID,
		Role:           conversation.RoleAssistant,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := ms.svc.finishExchange(ms.ctx, ms.convID, ms.userMsg, assistantMsg); err != nil {
		return err
	}
	ms.msg = assistantMsg
	return nil
}
