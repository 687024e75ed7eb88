package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestConversation(studentID uuid.UUID, active bool, lastMessageAt time.Time) *Conversation {
	return &Conversation{
		ID:            uuid.New(),
		StudentID:     studentID,
		Title:         "test conversation",
		IsActive:      active,
		LastMessageAt: lastMessageAt,
		CreatedAt:     lastMessageAt,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	conv := newTestConversation(uuid.New(), true, time.Now())
	if err := store.Create(ctx, conv); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != conv.ID || got.StudentID != conv.StudentID {
		t.Errorf("got conversation %+v, want %+v", got, conv)
	}

	// Mutating the returned value must not affect the store.
	got.Title = "mutated"
	again, err := store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if again.Title != "test conversation" {
		t.Errorf("store state leaked through returned pointer: title = %q", again.Title)
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	_, err := store.Get(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ListByStudent_OrderAndPagination(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	studentID := uuid.New()

	base := time.Now()
	oldest := newTestConversation(studentID, false, base.Add(-2*time.Hour))
	middle := newTestConversation(studentID, false, base.Add(-time.Hour))
	newest := newTestConversation(studentID, true, base)
	other := newTestConversation(uuid.New(), true, base)

	for _, conv := range []*Conversation{oldest, newest, middle, other} {
		if err := store.Create(ctx, conv); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	page, total, err := store.ListByStudent(ctx, studentID, 2, 0)
	if err != nil {
		t.Fatalf("ListByStudent failed: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(page) != 2 {
		t.Fatalf("page length = %d, want 2", len(page))
	}
	if page[0].ID != newest.ID || page[1].ID != middle.ID {
		t.Errorf("expected most-recent-first ordering, got %v then %v", page[0].ID, page[1].ID)
	}

	rest, _, err := store.ListByStudent(ctx, studentID, 2, 2)
	if err != nil {
		t.Fatalf("ListByStudent failed: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != oldest.ID {
		t.Errorf("expected last page to contain only the oldest conversation")
	}
}

func TestMemoryStore_DeactivateAll(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	studentID := uuid.New()

	first := newTestConversation(studentID, true, time.Now())
	second := newTestConversation(studentID, true, time.Now())
	foreign := newTestConversation(uuid.New(), true, time.Now())
	for _, conv := range []*Conversation{first, second, foreign} {
		if err := store.Create(ctx, conv); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	if err := store.DeactivateAll(ctx, studentID); err != nil {
		t.Fatalf("DeactivateAll failed: %v", err)
	}

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		conv, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if conv.IsActive {
			t.Errorf("conversation %s still active after DeactivateAll", id)
		}
	}

	conv, err := store.Get(ctx, foreign.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !conv.IsActive {
		t.Error("DeactivateAll touched another student's conversation")
	}
}

func TestMemoryStore_MessagesOrderingAndPagination(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	conv := newTestConversation(uuid.New(), true, time.Now())
	if err := store.Create(ctx, conv); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	base := time.Now()
	contents := []string{"one", "two", "three", "four", "five"}
	for i, content := range contents {
		msg := &Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			Role:           RoleUser,
			Content:        content,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := store.AddMessage(ctx, msg); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	page, total, err := store.Messages(ctx, conv.ID, 3, 1)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	want := []string{"two", "three", "four"}
	if len(page) != len(want) {
		t.Fatalf("page length = %d, want %d", len(page), len(want))
	}
	for i, msg := range page {
		if msg.Content != want[i] {
			t.Errorf("page[%d] = %q, want %q", i, msg.Content, want[i])
		}
	}

	recent, err := store.RecentMessages(ctx, conv.ID, 2)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(recent) != 2 || recent[0].Content != "four" || recent[1].Content != "five" {
		t.Errorf("RecentMessages = %v, want tail [four five] in ascending order", recent)
	}
}

func TestMemoryStore_RecordActivity(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	conv := newTestConversation(uuid.New(), true, time.Now())
	if err := store.Create(ctx, conv); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.RecordActivity(ctx, conv.ID, 2); err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}

	got, err := store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", got.MessageCount)
	}

	if err := store.RecordActivity(ctx, uuid.New(), 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown conversation, got %v", err)
	}
}

func TestMemoryStore_DeleteMessagesAndConversation(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	conv := newTestConversation(uuid.New(), true, time.Now())
	if err := store.Create(ctx, conv); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for range 3 {
		msg := &Message{ID: uuid.New(), ConversationID: conv.ID, Role: RoleUser, Content: "x", CreatedAt: time.Now()}
		if err := store.AddMessage(ctx, msg); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	deleted, err := store.DeleteMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("DeleteMessages failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}

	if err := store.Delete(ctx, conv.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	if err := store.Delete(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestTitleFromMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantLen int
		exact   string
	}{
		{name: "short message unchanged", content: "Hola", exact: "Hola"},
		{name: "long message truncated", content: longString(300), wantLen: TitleMaxLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := TitleFromMessage(tt.content)
			if tt.exact != "" && got != tt.exact {
				t.Errorf("TitleFromMessage(%q) = %q, want %q", tt.content, got, tt.exact)
			}
			if tt.wantLen > 0 && len([]rune(got)) != tt.wantLen {
				t.Errorf("title length = %d, want %d", len([]rune(got)), tt.wantLen)
			}
		})
	}
}

func longString(n int) string {
	runes := make([]rune, n)
	for i := range runes {
		runes[i] = 'a'
	}
	return string(runes)
}
