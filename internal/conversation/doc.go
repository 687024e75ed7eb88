// Package conversation defines the conversation and message domain model and
// the Store contract the orchestration layer uses to persist them.
//
// The package provides two Store implementations:
//   - PostgresStore: production persistence on pgx/pgxpool
//   - MemoryStore: in-memory persistence for tests and database-less runs
//
// Messages are append-only and totally ordered by creation time within a
// conversation; conversations only ever change their counters and active flag.
package conversation
