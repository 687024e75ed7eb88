package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversations and messages in PostgreSQL.
//
// PostgresStore is safe for concurrent use by multiple goroutines; all
// concurrency control is delegated to the database.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgresStore backed by the given pool.
// The pool's lifecycle is managed by the caller.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// Create persists a new conversation.
func (s *PostgresStore) Create(ctx context.Context, conv *Conversation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, student_id, title, is_active, last_message_at, message_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		conv.ID, conv.StudentID, conv.Title, conv.IsActive, conv.LastMessageAt, conv.MessageCount, conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation %s: %w", conv.ID, err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "student_id", conv.StudentID)
	return nil
}

// Get retrieves a conversation by ID.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	var conv Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id, student_id, title, is_active, last_message_at, message_count, created_at
		FROM conversations WHERE id = $1`, id).
		Scan(&conv.ID, &conv.StudentID, &conv.Title, &conv.IsActive,
			&conv.LastMessageAt, &conv.MessageCount, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	return &conv, nil
}

// ListByStudent lists a student's conversations by most recent activity.
func (s *PostgresStore) ListByStudent(ctx context.Context, studentID uuid.UUID, limit, offset int) ([]*Conversation, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM conversations WHERE student_id = $1`, studentID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, student_id, title, is_active, last_message_at, message_count, created_at
		FROM conversations
		WHERE student_id = $1
		ORDER BY last_message_at DESC
		LIMIT $2 OFFSET $3`, studentID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]*Conversation, 0, limit)
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.StudentID, &conv.Title, &conv.IsActive,
			&conv.LastMessageAt, &conv.MessageCount, &conv.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return conversations, total, nil
}

// DeactivateAll clears the active flag on all of the student's conversations.
func (s *PostgresStore) DeactivateAll(ctx context.Context, studentID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE conversations SET is_active = FALSE WHERE student_id = $1 AND is_active`, studentID)
	if err != nil {
		return fmt.Errorf("failed to deactivate conversations for student %s: %w", studentID, err)
	}
	return nil
}

// RecordActivity bumps the message counter and activity timestamp.
func (s *PostgresStore) RecordActivity(ctx context.Context, id uuid.UUID, delta int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET message_count = message_count + $2, last_message_at = NOW()
		WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("failed to record activity on conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes a conversation row.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}

	s.logger.Debug("deleted conversation", "id", id)
	return nil
}

// AddMessage appends a message to a conversation.
func (s *PostgresStore) AddMessage(ctx context.Context, msg *Message) error {
	metadataJSON, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal message metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, metadataJSON, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add message %s: %w", msg.ID, err)
	}
	return nil
}

// Messages returns a page of messages in ascending creation order.
func (s *PostgresStore) Messages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, metadata, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3`, conversationID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// RecentMessages returns the tail of the history in ascending order.
// The query selects the newest n rows descending, then the result is reversed
// so callers always see chronological order.
func (s *PostgresStore) RecentMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]*Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, metadata, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse into ascending creation order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// DeleteMessages removes all messages of a conversation.
func (s *PostgresStore) DeleteMessages(ctx context.Context, conversationID uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages of conversation %s: %w", conversationID, err)
	}
	return int(tag.RowsAffected()), nil
}

// scanMessages drains rows into messages, decoding metadata JSON.
func scanMessages(rows pgx.Rows) ([]*Message, error) {
	var messages []*Message
	for rows.Next() {
		var (
			msg          Message
			role         string
			metadataJSON []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &metadataJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = Role(role)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of message %s: %w", msg.ID, err)
			}
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}
