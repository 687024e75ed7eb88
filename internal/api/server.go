// Package api exposes the study assistant over HTTP: JSON endpoints for
// sending messages, history and knowledge management, plus an SSE endpoint
// for streamed replies.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/study-assistant/internal/chat"
	"github.com/koopa0/study-assistant/internal/knowledge"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Chat   *chat.Service    // Required
	Index  *knowledge.Index // Required
	Logger *slog.Logger
	Pool   *pgxpool.Pool // Optional: nil disables database ping in /api/ready

	TrustProxy    bool    // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RatePerSecond float64 // Per-IP token refill rate (0 = default 5)
	RateBurst     int     // Per-IP burst size (0 = default 10)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Chat == nil {
		return nil, errors.New("chat service is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("knowledge index is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{svc: cfg.Chat, logger: logger}
	hh := &historyHandler{svc: cfg.Chat, logger: logger}
	kh := &knowledgeHandler{index: cfg.Index, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", ch.send)
	mux.HandleFunc("POST /api/chat/stream", ch.stream)

	mux.HandleFunc("POST /api/conversations", hh.startConversation)
	mux.HandleFunc("GET /api/history", hh.history)
	mux.HandleFunc("DELETE /api/history/{conversationId}", hh.deleteHistory)

	mux.HandleFunc("POST /api/knowledge/ingest", kh.ingest)
	mux.HandleFunc("GET /api/knowledge/search", kh.search)
	mux.HandleFunc("GET /api/knowledge/stats", kh.stats)

	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 10
	}
	rl := newRateLimiter(perSecond, burst)

	// Middleware stack, outermost first:
	//   Recovery → Tracing → Logging → RateLimit → Routes
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = tracingMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack so they stay cheap and are
	// never rate limited.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /api/health", health(logger))
	topMux.HandleFunc("GET /api/ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
