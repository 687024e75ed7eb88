package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresChunkStore persists chunks with their embedding vectors in
// PostgreSQL using the pgvector column type.
//
// The store only loads and deletes; similarity is computed in-process by the
// Index, so no vector index structure is maintained on the table.
type PostgresChunkStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ ChunkStore = (*PostgresChunkStore)(nil)

// NewPostgresChunkStore creates a PostgresChunkStore backed by the given pool.
func NewPostgresChunkStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresChunkStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresChunkStore{pool: pool, logger: logger}
}

// InsertChunks persists a batch of chunks in one round trip.
func (s *PostgresChunkStore) InsertChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk metadata: %w", err)
		}
		batch.Queue(`
			INSERT INTO knowledge_chunks (id, course_id, content, embedding, source_label, chunk_index, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			chunk.ID, chunk.CourseID, chunk.Content, pgvector.NewVector(chunk.Embedding),
			chunk.SourceLabel, chunk.ChunkIndex, metadataJSON, chunk.CreatedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk batch: %w", err)
		}
	}

	s.logger.Debug("inserted chunk batch", "count", len(chunks))
	return nil
}

// ChunksByCourse returns every chunk owned by the course, in chunk order.
func (s *PostgresChunkStore) ChunksByCourse(ctx context.Context, courseID uuid.UUID) ([]*Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, course_id, content, embedding, source_label, chunk_index, metadata, created_at
		FROM knowledge_chunks
		WHERE course_id = $1
		ORDER BY chunk_index ASC`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks for course %s: %w", courseID, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// AllChunks returns every chunk in the store.
func (s *PostgresChunkStore) AllChunks(ctx context.Context) ([]*Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, course_id, content, embedding, source_label, chunk_index, metadata, created_at
		FROM knowledge_chunks
		ORDER BY course_id, chunk_index ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// DeleteCourse removes all chunks of a course.
func (s *PostgresChunkStore) DeleteCourse(ctx context.Context, courseID uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM knowledge_chunks WHERE course_id = $1`, courseID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for course %s: %w", courseID, err)
	}
	return int(tag.RowsAffected()), nil
}

// CountChunks returns the total number of chunks.
func (s *PostgresChunkStore) CountChunks(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// CountCourses returns the number of distinct courses with chunks.
func (s *PostgresChunkStore) CountCourses(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT course_id) FROM knowledge_chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count courses: %w", err)
	}
	return count, nil
}

func scanChunks(rows pgx.Rows) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		var (
			chunk        Chunk
			embedding    pgvector.Vector
			metadataJSON []byte
		)
		if err := rows.Scan(&chunk.ID, &chunk.CourseID, &chunk.Content, &embedding,
			&chunk.SourceLabel, &chunk.ChunkIndex, &metadataJSON, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunk.Embedding = embedding.Slice()
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of chunk %s: %w", chunk.ID, err)
			}
		}
		chunks = append(chunks, &chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	return chunks, nil
}
