package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/study-assistant/internal/chat"
	"github.com/koopa0/study-assistant/internal/conversation"
	"github.com/koopa0/study-assistant/internal/generate"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// chatHandler handles the send/stream endpoints:
//
//	POST /api/chat        - synchronous chat (JSON request/response)
//	POST /api/chat/stream - streaming chat (SSE)
type chatHandler struct {
	svc    *chat.Service
	logger *slog.Logger
}

type sendRequest struct {
	StudentID      string `json:"studentId"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

type messagePayload struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	TokensUsed int       `json:"tokensUsed,omitempty"`
	Model      string    `json:"model,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toMessagePayload(m *conversation.Message) messagePayload {
	return messagePayload{
		ID:         m.ID.String(),
		Role:       string(m.Role),
		Content:    m.Content,
		TokensUsed: m.Metadata.TokensUsed,
		Model:      m.Metadata.Model,
		CreatedAt:  m.CreatedAt,
	}
}

type sendResponse struct {
	ConversationID   string         `json:"conversationId"`
	UserMessage      messagePayload `json:"userMessage"`
	AssistantMessage messagePayload `json:"assistantMessage"`
}

// decodeSend parses and validates the common send/stream request body.
// Writes the error response itself and reports ok=false on failure.
func (h *chatHandler) decodeSend(w http.ResponseWriter, r *http.Request) (studentID, conversationID uuid.UUID, message string, ok bool) {
	var req sendRequest
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
	if req.ConversationID != "" {
		conversationID, err = uuid.Parse(req.ConversationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "conversationId must be a valid UUID", h.logger)
			return
		}
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required", h.logger)
		return
	}
	return studentID, conversationID, req.Message, true
}

// send handles POST /api/chat.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	studentID, conversationID, message, ok := h.decodeSend(w, r)
	if !ok {
		return
	}

	result, err := h.svc.SendMessage(r.Context(), studentID, message, conversationID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, sendResponse{
		ConversationID:   result.ConversationID.String(),
		UserMessage:      toMessagePayload(result.UserMessage),
		AssistantMessage: toMessagePayload(result.AssistantMessage),
	}, h.logger)
}

// Streaming wire frames. Each frame is one SSE line "data: <json>\n\n"; the
// first frame always carries the conversation ID and the last is either done
// or error.
type conversationFrame struct {
	ConversationID string `json:"conversationId"`
}

type tokenFrame struct {
	Token string `json:"token"`
}

type doneFrame struct {
	Done      bool   `json:"done"`
	MessageID string `json:"messageId"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// stream handles POST /api/chat/stream.
//
// Failures before the stream is established are plain JSON errors; failures
// after the first frame arrive as a terminal {error} frame, with everything
// already emitted left standing.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	studentID, conversationID, message, ok := h.decodeSend(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported", h.logger)
		return
	}

	ms, err := h.svc.StreamMessage(r.Context(), studentID, message, conversationID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	defer ms.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := writeFrame(w, flusher, conversationFrame{ConversationID: ms.ConversationID().String()}); err != nil {
		h.logger.Debug("client disconnected before first frame", "error", err)
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			// Abandoned stream: Close stops production, nothing is persisted.
			h.logger.Info("client disconnected mid-stream", "conversation_id", ms.ConversationID())
			return
		default:
		}

		frag, more, err := ms.Recv()
		if err != nil {
			h.logger.Error("stream failed", "conversation_id", ms.ConversationID(), "error", err)
			_ = writeFrame(w, flusher, errorFrame{Error: streamErrorMessage(err)})
			return
		}
		if !more {
			break
		}
		if err := writeFrame(w, flusher, tokenFrame{Token: frag}); err != nil {
			// Write failure usually means the connection closed.
			h.logger.Debug("failed to write token frame", "error", err)
			return
		}
	}

	_ = writeFrame(w, flusher, doneFrame{Done: true, MessageID: ms.Message().ID.String()})
}

// streamErrorMessage is the caller-facing text for a terminal error frame.
// Provider detail stays in logs.
func streamErrorMessage(err error) string {
	if errors.Is(err, generate.ErrRateLimited) {
		return "assistant is busy, retry shortly"
	}
	return "assistant unavailable"
}

// writeFrame writes a single SSE frame: "data: <json>\n\n".
func writeFrame(w io.Writer, flusher http.Flusher, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	flusher.Flush()
	return nil
}
