package knowledge

import (
	"context"

	"github.com/google/uuid"
)

// ChunkStore is the persistence contract the Index depends on.
//
// Candidate loading is the only read path the index needs: similarity is
// computed in-process, so the store returns chunks with their vectors and
// performs no ranking of its own.
type ChunkStore interface {
	// InsertChunks persists a batch of freshly embedded chunks.
	InsertChunks(ctx context.Context, chunks []*Chunk) error

	// ChunksByCourse returns every chunk owned by the course.
	ChunksByCourse(ctx context.Context, courseID uuid.UUID) ([]*Chunk, error)

	// AllChunks returns every chunk in the store.
	AllChunks(ctx context.Context) ([]*Chunk, error)

	// DeleteCourse removes all chunks of a course and reports how many were
	// deleted. Deleting a course with no chunks is not an error.
	DeleteCourse(ctx context.Context, courseID uuid.UUID) (int, error)

	// CountChunks returns the total number of chunks.
	CountChunks(ctx context.Context) (int, error)

	// CountCourses returns the number of distinct courses with chunks.
	CountCourses(ctx context.Context) (int, error)
}
