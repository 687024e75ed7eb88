package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/koopa0/study-assistant/internal/chat"
	"github.com/koopa0/study-assistant/internal/conversation"
	"github.com/koopa0/study-assistant/internal/generate"
)

// writeJSON writes a JSON response with the given status code.
// Buffer-first: headers are only sent after successful encoding, so an
// encoding failure can still produce a proper 500.
func writeJSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("failed to write response body", "error", err)
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string, logger *slog.Logger) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}}, logger)
}

// writeServiceError maps a service-layer error to the HTTP response.
//
// Provider-side failures (misconfiguration, unavailability, bad output) all
// present as a generic "assistant unavailable": the distinction is
// operator-actionable, not caller-actionable, and the details stay in logs.
func writeServiceError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), logger)
	case errors.Is(err, conversation.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "conversation not found", logger)
	case errors.Is(err, conversation.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "conversation belongs to another student", logger)
	case errors.Is(err, generate.ErrRateLimited):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusTooManyRequests, "rate_limited", "assistant is busy, retry shortly", logger)
	case errors.Is(err, generate.ErrMisconfigured),
		errors.Is(err, generate.ErrUnavailable),
		errors.Is(err, generate.ErrInvalidResponse):
		logger.Error("generation failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "assistant_unavailable", "assistant unavailable", logger)
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", logger)
	}
}
