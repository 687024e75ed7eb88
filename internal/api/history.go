package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/study-assistant/internal/chat"
	"github.com/koopa0/study-assistant/internal/conversation"
)

// historyHandler handles conversation listing, message history and deletion:
//
//	POST   /api/conversations              - start a new conversation
//	GET    /api/history                    - list conversations or messages
//	DELETE /api/history/{conversationId}   - delete a conversation
type historyHandler struct {
	svc    *chat.Service
	logger *slog.Logger
}

type conversationPayload struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	IsActive      bool      `json:"isActive"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	MessageCount  int       `json:"messageCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toConversationPayload(c *conversation.Conversation) conversationPayload {
	return conversationPayload{
		ID:            c.ID.String(),
		Title:         c.Title,
		IsActive:      c.IsActive,
		LastMessageAt: c.LastMessageAt,
		MessageCount:  c.MessageCount,
		CreatedAt:     c.CreatedAt,
	}
}

type startConversationRequest struct {
	StudentID      string `json:"studentId"`
	InitialContext string `json:"initialContext,omitempty"`
}

// startConversation handles POST /api/conversations.
func (h *historyHandler) startConversation(w http.ResponseWriter, r *http.Request) {
	var req startConversationRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	studentID, err := uuid.Parse(req.StudentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "studentId must be a valid UUID", h.logger)
		return
	}

	conv, err := h.svc.StartNewConversation(r.Context(), studentID, req.InitialContext)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"conversation": toConversationPayload(conv)}, h.logger)
}

// history handles GET /api/history. With a conversationId query parameter it
// returns that conversation's messages oldest first; without one it returns
// the student's conversations by most recent activity. Both are paginated via
// page/limit.
func (h *historyHandler) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	studentID, err := uuid.Parse(q.Get("studentId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "studentId must be a valid UUID", h.logger)
		return
	}
	page := intQuery(q.Get("page"), 1)
	limit := intQuery(q.Get("limit"), chat.DefaultPageLimit)

	if raw := q.Get("conversationId"); raw != "" {
		conversationID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "conversationId must be a valid UUID", h.logger)
			return
		}

		hist, err := h.svc.History(r.Context(), studentID, conversationID, page, limit)
		if err != nil {
			writeServiceError(w, err, h.logger)
			return
		}

		messages := make([]messagePayload, len(hist.Messages))
		for i, m := range hist.Messages {
			messages[i] = toMessagePayload(m)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"conversation": toConversationPayload(hist.Conversation),
			"messages":     messages,
			"pagination":   hist.Pagination,
		}, h.logger)
		return
	}

	list, err := h.svc.Conversations(r.Context(), studentID, page, limit)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	conversations := make([]conversationPayload, len(list.Conversations))
	for i, c := range list.Conversations {
		conversations[i] = toConversationPayload(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": conversations,
		"pagination":    list.Pagination,
	}, h.logger)
}

// deleteHistory handles DELETE /api/history/{conversationId}.
func (h *historyHandler) deleteHistory(w http.ResponseWriter, r *http.Request) {
	studentID, err := uuid.Parse(r.URL.Query().Get("studentId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "studentId must be a valid UUID", h.logger)
		return
	}
	conversationID, err := uuid.Parse(r.PathValue("conversationId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "conversationId must be a valid UUID", h.logger)
		return
	}

	deleted, err := h.svc.DeleteHistory(r.Context(), studentID, conversationID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deletedMessages": deleted}, h.logger)
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
