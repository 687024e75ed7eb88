package conversation

import (
	"context"

	"github.com/google/uuid"
)

// Store is the persistence contract the orchestration layer depends on.
// Following Go best practices: the interface describes what the consumer
// needs, not what a particular backend provides.
//
// Two implementations exist: Postgres (production) and Memory (tests and
// running without a database). Both must honor the same ordering guarantee:
// within one conversation, messages are totally ordered by creation time and
// are only ever appended, so history reads always observe a consistent prefix.
type Store interface {
	// Create persists a new conversation.
	Create(ctx context.Context, conv *Conversation) error

	// Get retrieves a conversation by ID.
	// Returns ErrNotFound if the conversation does not exist.
	Get(ctx context.Context, id uuid.UUID) (*Conversation, error)

	// ListByStudent lists a student's conversations ordered by most recent
	// activity (last_message_at descending), with skip/limit pagination.
	// The second return value is the total count before pagination.
	ListByStudent(ctx context.Context, studentID uuid.UUID, limit, offset int) ([]*Conversation, int, error)

	// DeactivateAll clears the IsActive flag on every conversation owned by
	// the student. Used when a new active conversation starts.
	DeactivateAll(ctx context.Context, studentID uuid.UUID) error

	// RecordActivity increments the conversation's message count by delta and
	// sets last_message_at. Returns ErrNotFound for unknown conversations.
	RecordActivity(ctx context.Context, id uuid.UUID, delta int) error

	// Delete removes a conversation. Its messages must already be gone
	// (DeleteMessages first). Returns ErrNotFound for unknown conversations.
	Delete(ctx context.Context, id uuid.UUID) error

	// AddMessage appends an immutable message to a conversation.
	AddMessage(ctx context.Context, msg *Message) error

	// Messages returns a page of messages ordered by creation time ascending.
	// The second return value is the total message count for the conversation.
	Messages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, int, error)

	// RecentMessages returns the most recent n messages of a conversation in
	// ascending creation order (the tail of the history).
	RecentMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]*Message, error)

	// DeleteMessages removes all messages of a conversation and reports how
	// many were deleted.
	DeleteMessages(ctx context.Context, conversationID uuid.UUID) (int, error)
}
