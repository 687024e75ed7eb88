// Package knowledge implements the per-course knowledge index used to ground
// assistant answers in reference material.
//
// Reference text is split into sentence-packed chunks, embedded through an
// Embedder capability, and stored with its vectors in a ChunkStore. Retrieval
// is a linear cosine-similarity scan over the candidate chunks of a course;
// this is deliberate — the index is not a vector database, and candidate sets
// are small enough that a scan beats maintaining index structures.
//
// Retrieval is an enhancement, not a hard dependency: a failing embedder
// degrades searches to empty results instead of failing the caller.
package knowledge
