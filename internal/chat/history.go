package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/koopa0/study-assistant/internal/conversation"
)

// Pagination limits.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func paginate(page, limit, total int) (Pagination, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	totalPages := (total + limit - 1) / limit
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}, (page - 1) * limit
}

// MessageHistory is one page of a conversation's messages, oldest first.
type MessageHistory struct {
	Conversation *conversation.Conversation
	Messages     []*conversation.Message
	Pagination   Pagination
}

// ConversationList is one page of a student's conversations, most recently
// active first.
type ConversationList struct {
	Conversations []*conversation.Conversation
	Pagination    Pagination
}

// History returns a page of a conversation's messages ordered by creation
// time ascending. Returns conversation.ErrNotFound for unknown conversations
// and conversation.ErrForbidden when the conversation belongs to another
// student.
func (s *Service) History(ctx context.Context, studentID, conversationID uuid.UUID, page, limit int) (*MessageHistory, error) {
	conv, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.StudentID != studentID {
		return nil, conversation.ErrForbidden
	}

	// First pass normalizes page/limit; total is filled in after the query.
	pg, offset := paginate(page, limit, 0)
	messages, total, err := s.store.Messages(ctx, conversationID, pg.Limit, offset)
	if err != nil {
		return nil, fmt.Errorf("loading message history: %w", err)
	}
	pg, _ = paginate(pg.Page, pg.Limit, total)

	return &MessageHistory{
		Conversation: conv,
		Messages:     messages,
		Pagination:   pg,
	}, nil
}

// Conversations returns a page of the student's conversations ordered by most
// recent activity.
func (s *Service) Conversations(ctx context.Context, studentID uuid.UUID, page, limit int) (*ConversationList, error) {
	pg, offset := paginate(page, limit, 0)
	conversations, total, err := s.store.ListByStudent(ctx, studentID, pg.Limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	pg, _ = paginate(pg.Page, pg.Limit, total)

	return &ConversationList{
		Conversations: conversations,
		Pagination:    pg,
	}, nil
}

// DeleteHistory removes a conversation's messages, then the conversation,
// then invalidates its cache entry. Returns the number of deleted messages,
// conversation.ErrNotFound for unknown conversations, and
// conversation.ErrForbidden for another student's conversation.
func (s *Service) DeleteHistory(ctx context.Context, studentID, conversationID uuid.UUID) (int, error) {
	conv, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if conv.StudentID != studentID {
		return 0, conversation.ErrForbidden
	}

	deleted, err := s.store.DeleteMessages(ctx, conversationID)
	if err != nil {
		return 0, fmt.Errorf("deleting messages: %w", err)
	}
	if err := s.store.Delete(ctx, conversationID); err != nil {
		return deleted, fmt.Errorf("deleting conversation: %w", err)
	}
	s.cache.Invalidate(conversationID)

	s.logger.Info("deleted conversation history",
		"conversation_id", conversationID, "student_id", studentID, "messages", deleted)
	return deleted, nil
}
