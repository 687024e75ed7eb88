package knowledge

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryChunkStore is an in-memory ChunkStore for tests and database-less runs.
//
// Returned chunks are copies with independently allocated embedding slices, so
// callers can never mutate stored state through a result.
type MemoryChunkStore struct {
	mu     sync.RWMutex
	chunks []Chunk
}

var _ ChunkStore = (*MemoryChunkStore)(nil)

// NewMemoryChunkStore creates an empty MemoryChunkStore.
func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{}
}

// InsertChunks persists a batch of chunks.
func (s *MemoryChunkStore) InsertChunks(_ context.Context, chunks []*Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chunk := range chunks {
		stored := *chunk
		stored.Embedding = slices.Clone(chunk.Embedding)
		s.chunks = append(s.chunks, stored)
	}
	return nil
}

// ChunksByCourse returns every chunk owned by the course.
func (s *MemoryChunkStore) ChunksByCourse(_ context.Context, courseID uuid.UUID) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Chunk
	for i := range s.chunks {
		if s.chunks[i].CourseID == courseID {
			out = append(out, copyChunk(s.chunks[i]))
		}
	}
	return out, nil
}

// AllChunks returns every chunk in the store.
func (s *MemoryChunkStore) AllChunks(_ context.Context) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Chunk, 0, len(s.chunks))
	for i := range s.chunks {
		out = append(out, copyChunk(s.chunks[i]))
	}
	return out, nil
}

// DeleteCourse removes all chunks of a course.
func (s *MemoryChunkStore) DeleteCourse(_ context.Context, courseID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.chunks)
	s.chunks = slices.DeleteFunc(s.chunks, func(c Chunk) bool {
		return c.CourseID == courseID
	})
	return before - len(s.chunks), nil
}

// CountChunks returns the total number of chunks.
func (s *MemoryChunkStore) CountChunks(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// CountCourses returns the number of distinct courses with chunks.
func (s *MemoryChunkStore) CountCourses(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	courses := make(map[uuid.UUID]struct{})
	for i := range s.chunks {
		courses[s.chunks[i].CourseID] = struct{}{}
	}
	return len(courses), nil
}

func copyChunk(c Chunk) *Chunk {
	c.Embedding = slices.Clone(c.Embedding)
	return &c
}
