package conversation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation.
//
// It backs tests and database-less development runs. Values handed out are
// copies: callers can never mutate the store's internal state through a
// returned Conversation or Message.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]Conversation
	messages      map[uuid.UUID][]Message // keyed by conversation ID, append order
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uuid.UUID]Conversation),
		messages:      make(map[uuid.UUID][]Message),
	}
}

// Create persists a new conversation.
func (s *MemoryStore) Create(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[conv.ID] = *conv
	return nil
}

// Get retrieves a conversation by ID.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	out := conv
	return &out, nil
}

// ListByStudent lists a student's conversations by most recent activity.
func (s *MemoryStore) ListByStudent(_ context.Context, studentID uuid.UUID, limit, offset int) ([]*Conversation, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []Conversation
	for _, conv := range s.conversations {
		if conv.StudentID == studentID {
			owned = append(owned, conv)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].LastMessageAt.After(owned[j].LastMessageAt)
	})

	total := len(owned)
	if offset >= total {
		return []*Conversation{}, total, nil
	}
	end := min(offset+limit, total)

	page := make([]*Conversation, 0, end-offset)
	for i := offset; i < end; i++ {
		conv := owned[i]
		page = append(page, &conv)
	}
	return page, total, nil
}

// DeactivateAll clears the active flag on all of the student's conversations.
func (s *MemoryStore) DeactivateAll(_ context.Context, studentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, conv := range s.conversations {
		if conv.StudentID == studentID && conv.IsActive {
			conv.IsActive = false
			s.conversations[id] = conv
		}
	}
	return nil
}

// RecordActivity bumps the message counter and activity timestamp.
func (s *MemoryStore) RecordActivity(_ context.Context, id uuid.UUID, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}

	conv.MessageCount += delta
	if msgs := s.messages[id]; len(msgs) > 0 {
		conv.LastMessageAt = msgs[len(msgs)-1].CreatedAt
	}
	s.conversations[id] = conv
	return nil
}

// Delete removes a conversation.
func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	delete(s.conversations, id)
	return nil
}

// AddMessage appends a message to a conversation.
func (s *MemoryStore) AddMessage(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	return nil
}

// Messages returns a page of messages in ascending creation order.
func (s *MemoryStore) Messages(_ context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[conversationID]
	total := len(all)
	if offset >= total {
		return []*Message{}, total, nil
	}
	end := min(offset+limit, total)

	page := make([]*Message, 0, end-offset)
	for i := offset; i < end; i++ {
		msg := all[i]
		page = append(page, &msg)
	}
	return page, total, nil
}

// RecentMessages returns the tail of the history in ascending order.
func (s *MemoryStore) RecentMessages(_ context.Context, conversationID uuid.UUID, n int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[conversationID]
	start := max(len(all)-n, 0)

	tail := make([]*Message, 0, len(all)-start)
	for i := start; i < len(all); i++ {
		msg := all[i]
		tail = append(tail, &msg)
	}
	return tail, nil
}

// DeleteMessages removes all messages of a conversation.
func (s *MemoryStore) DeleteMessages(_ context.Context, conversationID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := len(s.messages[conversationID])
	delete(s.messages, conversationID)
	return deleted, nil
}
