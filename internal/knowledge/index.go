package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Embedding/ingestion tuning.
const (
	// embedBatchSize is the number of chunks embedded per ingestion batch.
	embedBatchSize = 5

	// DefaultSearchLimit is the number of results returned when the caller
	// does not choose a limit.
	DefaultSearchLimit = 3

	// DefaultMinScore is the minimum cosine similarity a chunk must reach to
	// be returned from a search.
	DefaultMinScore = 0.5

	// searchTimeout bounds a full search (query embedding + candidate scan).
	searchTimeout = 10 * time.Second
)

// Index chunks, embeds and ranks per-course reference material.
//
// Index is safe for concurrent use by multiple goroutines.
type Index struct {
	store        ChunkStore
	embedder     Embedder
	maxChunkSize int
	logger       *slog.Logger
}

// NewIndex creates an Index over the given store and embedder.
// maxChunkSize <= 0 selects DefaultMaxChunkSize.
func NewIndex(store ChunkStore, embedder Embedder, maxChunkSize int, logger *slog.Logger) *Index {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		store:        store,
		embedder:     embedder,
		maxChunkSize: maxChunkSize,
		logger:       logger,
	}
}

// IndexCourseContent replaces a course's chunks with freshly embedded ones.
//
// The operation is an idempotent replace-all: existing chunks of the course
// are deleted first, then the content is split and embedded in batches of
// embedBatchSize with bounded concurrency inside each batch. A single chunk's
// embedding failure is logged and skipped; it never aborts the batch or the
// remaining batches. Returns the number of chunks successfully created.
func (idx *Index) IndexCourseContent(ctx context.Context, courseID uuid.UUID, content, sourceLabel string) (int, error) {
	deleted, err := idx.store.DeleteCourse(ctx, courseID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear existing chunks for course %s: %w", courseID, err)
	}
	if deleted > 0 {
		idx.logger.Debug("replaced existing course chunks", "course_id", courseID, "deleted", deleted)
	}

	pieces := SplitIntoChunks(content, idx.maxChunkSize)
	if len(pieces) == 0 {
		return 0, nil
	}

	created := 0
	for start := 0; start < len(pieces); start += embedBatchSize {
		end := min(start+embedBatchSize, len(pieces))

		batch := make([]*Chunk, end-start)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(embedBatchSize)

		for i := start; i < end; i++ {
			g.Go(func() error {
				emb, embedErr := idx.embedder.Embed(gctx, pieces[i])
				if embedErr != nil {
					// Skip this chunk; the rest of the batch proceeds.
					idx.logger.Warn("skipping chunk after embedding failure",
						"course_id", courseID, "chunk_index", i, "error", embedErr)
					return nil
				}
				if len(emb.Vector) == 0 {
					idx.logger.Warn("skipping chunk with empty embedding",
						"course_id", courseID, "chunk_index", i)
					return nil
				}
				batch[i-start] = &Chunk{
					ID:          uuid.New(),
					CourseID:    courseID,
					Content:     pieces[i],
					Embedding:   emb.Vector,
					SourceLabel: sourceLabel,
					ChunkIndex:  i,
					Metadata:    ChunkMetadata{TokenCount: emb.TokenCount},
					CreatedAt:   time.Now(),
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return created, fmt.Errorf("failed to embed batch starting at chunk %d: %w", start, err)
		}

		// Compact out skipped chunks before inserting.
		embedded := batch[:0]
		for _, c := range batch {
			if c != nil {
				embedded = append(embedded, c)
			}
		}
		if len(embedded) == 0 {
			continue
		}
		if err := idx.store.InsertChunks(ctx, embedded); err != nil {
			return created, fmt.Errorf("failed to insert chunk batch for course %s: %w", courseID, err)
		}
		created += len(embedded)
	}

	idx.logger.Info("indexed course content",
		"course_id", courseID,
		"source", sourceLabel,
		"chunks_created", created,
		"chunks_total", len(pieces),
	)
	return created, nil
}

// SearchOption configures a similarity search.
type SearchOption func(*searchConfig)

type searchConfig struct {
	courseID  uuid.UUID
	hasCourse bool
	limit     int
	minScore  float64
}

// WithCourse restricts results to chunks owned by the course.
func WithCourse(courseID uuid.UUID) SearchOption {
	return func(cfg *searchConfig) {
		cfg.courseID = courseID
		cfg.hasCourse = true
	}
}

// WithLimit caps the number of results. Non-positive values keep the default.
func WithLimit(limit int) SearchOption {
	return func(cfg *searchConfig) {
		if limit > 0 {
			cfg.limit = limit
		}
	}
}

// WithMinScore sets the minimum similarity a result must reach.
func WithMinScore(minScore float64) SearchOption {
	return func(cfg *searchConfig) {
		cfg.minScore = minScore
	}
}

func buildSearchConfig(opts []SearchOption) searchConfig {
	cfg := searchConfig{
		limit:    DefaultSearchLimit,
		minScore: DefaultMinScore,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// SearchSimilar embeds the query and ranks candidate chunks by cosine
// similarity.
//
// Results carry only scores >= the minimum, sorted by descending score with
// ties broken by ascending chunk index for determinism, capped at the limit.
//
// A failing query embedding degrades to an empty result set instead of an
// error: retrieval grounds answers but must never block the conversation.
func (idx *Index) SearchSimilar(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	queryEmb, err := idx.embedder.Embed(ctx, query)
	if err != nil || len(queryEmb.Vector) == 0 {
		idx.logger.Warn("query embedding failed, returning empty results", "error", err)
		return []Result{}, nil
	}

	var candidates []*Chunk
	if cfg.hasCourse {
		candidates, err = idx.store.ChunksByCourse(ctx, cfg.courseID)
	} else {
		candidates, err = idx.store.AllChunks(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate chunks: %w", err)
	}

	results := make([]Result, 0, len(candidates))
	for _, chunk := range candidates {
		score, simErr := CosineSimilarity(queryEmb.Vector, chunk.Embedding)
		if simErr != nil {
			// A stored chunk with the wrong dimensionality is a data problem,
			// not a reason to fail the search.
			idx.logger.Warn("skipping chunk with incompatible embedding",
				"chunk_id", chunk.ID, "error", simErr)
			continue
		}
		if score < cfg.minScore {
			continue
		}
		results = append(results, Result{
			Content:     chunk.Content,
			CourseID:    chunk.CourseID,
			Score:       score,
			SourceLabel: chunk.SourceLabel,
			ChunkIndex:  chunk.ChunkIndex,
			Metadata:    chunk.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})

	if len(results) > cfg.limit {
		results = results[:cfg.limit]
	}
	return results, nil
}

// Stats reports index totals.
func (idx *Index) Stats(ctx context.Context) (Stats, error) {
	chunks, err := idx.store.CountChunks(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count chunks: %w", err)
	}
	courses, err := idx.store.CountCourses(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count courses: %w", err)
	}
	return Stats{TotalChunks: chunks, CoursesCovered: courses}, nil
}

// DeleteCourseChunks removes all chunks of a course.
func (idx *Index) DeleteCourseChunks(ctx context.Context, courseID uuid.UUID) (int, error) {
	deleted, err := idx.store.DeleteCourse(ctx, courseID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for course %s: %w", courseID, err)
	}
	idx.logger.Debug("deleted course chunks", "course_id", courseID, "count", deleted)
	return deleted, nil
}
