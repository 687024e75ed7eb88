// Package testutil provides shared testing utilities for the study
// assistant, following the pattern of standard library packages like
// net/http/httptest.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/koopa0/study-assistant/db"
	"github.com/koopa0/study-assistant/internal/log"
)

// TestDB wraps a PostgreSQL test container with a ready connection pool.
//
// The container runs the pgvector image and has all schema migrations
// applied, so tests can exercise the real storage layer including
// vector similarity queries.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB starts an isolated PostgreSQL container with the pgvector
// extension, applies migrations, and returns a connection pool. Cleanup
// is registered on t, so callers do not terminate the container
// themselves.
//
// Tests that call this should skip under -short: starting a container
// takes several seconds and requires a Docker daemon.
//
//	func TestPostgresStore(t *testing.T) {
//	    if testing.Short() {
//	        t.Skip("skipping container test in short mode")
//	    }
//	    tdb := testutil.SetupTestDB(t)
//	    store := conversation.NewPostgresStore(tdb.Pool, log.NewNop())
//	    ...
//	}
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("study_test"),
		postgres.WithUsername("study_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	if err := db.Migrate(connStr, log.NewNop()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return &TestDB{Container: pgContainer, Pool: pool, ConnStr: connStr}
}
