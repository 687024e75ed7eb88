// Package app assembles the application: configuration in, a wired service
// graph out. Construction is explicit rather than generated; the graph is
// small enough to read top to bottom.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/study-assistant/db"
	"github.com/koopa0/study-assistant/internal/chat"
	"github.com/koopa0/study-assistant/internal/config"
	"github.com/koopa0/study-assistant/internal/contextcache"
	"github.com/koopa0/study-assistant/internal/conversation"
	"github.com/koopa0/study-assistant/internal/gemini"
	"github.com/koopa0/study-assistant/internal/generate"
	"github.com/koopa0/study-assistant/internal/knowledge"
	"github.com/koopa0/study-assistant/internal/observability"
)

// App is the application container.
//
// Two backends exist: PostgreSQL (when postgres_host is configured) and
// in-memory (development and tests). Credentials decide the provider: without
// a Gemini API key the generation client runs in degraded placeholder mode
// and the knowledge index degrades to empty search results.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool  *pgxpool.Pool // nil in memory mode
	Store conversation.Store
	Cache *contextcache.Cache
	Index *knowledge.Index
	Chat  *chat.Service

	client        *generate.Client
	traceShutdown func(context.Context) error
}

// New builds the application from configuration.
//
// In PostgreSQL mode it connects, pings, and applies pending migrations
// before wiring the stores.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		pool       *pgxpool.Pool
		store      conversation.Store
		chunkStore knowledge.ChunkStore
	)
	if cfg.UsesPostgres() {
		var err error
		pool, err = pgxpool.New(ctx, cfg.PostgresConnectionString())
		if err != nil {
			return nil, fmt.Errorf("creating database pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("pinging database: %w", err)
		}
		if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		store = conversation.NewPostgresStore(pool, logger)
		chunkStore = knowledge.NewPostgresChunkStore(pool, logger)
		logger.Info("using PostgreSQL backend", "host", cfg.PostgresHost, "database", cfg.PostgresDBName)
	} else {
		store = conversation.NewMemoryStore()
		chunkStore = knowledge.NewMemoryChunkStore()
		logger.Warn("no database configured, using in-memory stores")
	}

	var (
		embedder knowledge.Embedder = unconfiguredEmbedder{}
		provider generate.Provider
	)
	if cfg.GeminiAPIKey != "" {
		client, err := gemini.New(ctx, gemini.Config{
			APIKey:          cfg.GeminiAPIKey,
			GenerationModel: cfg.GenerationModel,
			EmbeddingModel:  cfg.EmbeddingModel,
			EmbeddingDim:    int32(cfg.EmbeddingDim),
			Logger:          logger,
		})
		if err != nil {
			if pool != nil {
				pool.Close()
			}
			return nil, fmt.Errorf("creating gemini client: %w", err)
		}
		embedder = client
		provider = client
	}

	index := knowledge.NewIndex(chunkStore, embedder, cfg.MaxChunkSize, logger)
	cache := contextcache.New(store, logger)

	// A nil provider selects degraded placeholder mode inside the client.
	genClient := generate.NewClient(generate.Config{
		Provider: provider,
		Logger:   logger,
	})

	svc := chat.NewService(store, index, cache, genClient, logger)

	var traceShutdown func(context.Context) error
	if cfg.TracingEndpoint != "" {
		traceShutdown = observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.TracingEndpoint,
			Environment: cfg.TracingEnvironment,
		}, logger)
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		Pool:          pool,
		Store:         store,
		Cache:         cache,
		Index:         index,
		Chat:          svc,
		client:        genClient,
		traceShutdown: traceShutdown,
	}, nil
}

// Degraded reports whether the generation client runs without credentials.
func (a *App) Degraded() bool {
	return a.client.Degraded()
}

// Close releases held resources and flushes pending trace spans.
func (a *App) Close() {
	if a.traceShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.traceShutdown(ctx); err != nil {
			a.Logger.Warn("trace shutdown failed", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
}

// unconfiguredEmbedder fails every call; the knowledge index turns that into
// empty search results and skipped chunks, mirroring the generation client's
// degraded mode.
type unconfiguredEmbedder struct{}

func (unconfiguredEmbedder) Embed(context.Context, string) (knowledge.Embedding, error) {
	return knowledge.Embedding{}, fmt.Errorf("no embedding provider configured")
}
