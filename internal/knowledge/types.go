package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// ChunkMetadata carries optional accounting attached to a chunk.
type ChunkMetadata struct {
	TokenCount int    `json:"tokenCount,omitempty"`
	Section    string `json:"section,omitempty"`
}

// Chunk is a bounded slice of source text paired with its embedding vector.
// Chunks are the retrievable unit of the knowledge index.
type Chunk struct {
	ID          uuid.UUID
	CourseID    uuid.UUID
	Content     string
	Embedding   []float32
	SourceLabel string
	ChunkIndex  int // position within the source document
	Metadata    ChunkMetadata
	CreatedAt   time.Time
}

// Result is a single search hit.
type Result struct {
	Content     string
	CourseID    uuid.UUID
	Score       float64
	SourceLabel string
	ChunkIndex  int
	Metadata    ChunkMetadata
}

// Stats summarizes the index contents.
type Stats struct {
	TotalChunks    int `json:"totalChunks"`
	CoursesCovered int `json:"coursesCovered"`
}
