package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/koopa0/study-assistant/internal/knowledge"
)

// knowledgeHandler handles the reference-material endpoints:
//
//	POST /api/knowledge/ingest - replace a course's indexed content
//	GET  /api/knowledge/search - similarity search over indexed chunks
//	GET  /api/knowledge/stats  - index totals
type knowledgeHandler struct {
	index  *knowledge.Index
	logger *slog.Logger
}

type ingestRequest struct {
	CourseID    string `json:"courseId"`
	Content     string `json:"content"`
	SourceLabel string `json:"sourceLabel"`
}

// ingest handles POST /api/knowledge/ingest.
func (h *knowledgeHandler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	// Course material can be large; allow more than the chat body limit.
	r.Body = http.MaxBytesReader(w, r.Body, 8*maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	courseID, err := uuid.Parse(req.CourseID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "courseId must be a valid UUID", h.logger)
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "content is required", h.logger)
		return
	}

	created, err := h.index.IndexCourseContent(r.Context(), courseID, req.Content, req.SourceLabel)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"chunksCreated": created}, h.logger)
}

type searchResult struct {
	Content     string                  `json:"content"`
	CourseID    string                  `json:"courseId"`
	Score       float64                 `json:"score"`
	SourceLabel string                  `json:"sourceLabel,omitempty"`
	ChunkIndex  int                     `json:"chunkIndex"`
	Metadata    knowledge.ChunkMetadata `json:"metadata,omitempty"`
}

// search handles GET /api/knowledge/search.
func (h *knowledgeHandler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := q.Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required", h.logger)
		return
	}

	var opts []knowledge.SearchOption
	if raw := q.Get("courseId"); raw != "" {
		courseID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "courseId must be a valid UUID", h.logger)
			return
		}
		opts = append(opts, knowledge.WithCourse(courseID))
	}
	if limit := intQuery(q.Get("limit"), 0); limit > 0 {
		opts = append(opts, knowledge.WithLimit(limit))
	}

	results, err := h.index.SearchSimilar(r.Context(), query, opts...)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	out := make([]searchResult, len(results))
	for i, res := range results {
		out[i] = searchResult{
			Content:     res.Content,
			CourseID:    res.CourseID.String(),
			Score:       res.Score,
			SourceLabel: res.SourceLabel,
			ChunkIndex:  res.ChunkIndex,
			Metadata:    res.Metadata,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out}, h.logger)
}

// stats handles GET /api/knowledge/stats.
func (h *knowledgeHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.index.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, stats, h.logger)
}
