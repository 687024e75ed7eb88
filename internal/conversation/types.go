package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

// Message roles. RoleSystem is only ever used for seeded context windows,
// never persisted as a message.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Conversation is a single chat thread owned by a student.
//
// Exactly one conversation per student is active at a time; starting a new
// conversation deactivates all others for that student. Conversations are
// never mutated except to bump MessageCount/LastMessageAt and flip IsActive.
type Conversation struct {
	ID            uuid.UUID
	StudentID     uuid.UUID
	Title         string
	IsActive      bool
	LastMessageAt time.Time
	MessageCount  int
	CreatedAt     time.Time
}

// Metadata carries optional generation accounting for a message.
type Metadata struct {
	TokensUsed int    `json:"tokensUsed,omitempty"`
	Model      string `json:"model,omitempty"`
}

// Message is one turn in a conversation. Messages are immutable once created;
// they are appended only, never edited or reordered.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           Role
	Content        string
	Metadata       Metadata
	CreatedAt      time.Time
}

// TitleMaxLength is the maximum length of a conversation display title.
const TitleMaxLength = 100

// TitleFromMessage derives a display title from the first user message.
// Long messages are truncated at a rune boundary with an ellipsis.
func TitleFromMessage(content string) string {
	runes := []rune(content)
	if len(runes) <= TitleMaxLength {
		return content
	}
	return string(runes[:TitleMaxLength-3]) + "..."
}
