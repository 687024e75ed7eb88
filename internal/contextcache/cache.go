// Package contextcache holds the per-conversation history window used to
// prompt the generation model.
//
// The cache is a derived, disposable projection of persisted messages: losing
// it (or a cold start) is harmless because any entry can be reconstructed
// from storage. It is process-local by design — in a multi-replica deployment
// entries are neither shared nor invalidated across instances; the store
// remains the single source of truth.
//
// Hard rule: every entry is a value independently owned by its key. No
// operation on one key's value is ever implemented by retaining and mutating
// a slice another key (or a caller) also holds; replacement always installs a
// newly allocated window. This encodes the fix for a production defect where
// resetting one conversation's window truncated a slice still referenced by
// another conversation.
package contextcache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/koopa0/study-assistant/internal/conversation"
)

// WindowSize bounds each entry to the most recent turns.
const WindowSize = 20

// Turn is one role/content pair of a cached window.
type Turn struct {
	Role    conversation.Role
	Content string
}

// MessageLoader loads the persisted tail of a conversation for cache misses.
// conversation.Store satisfies this interface.
type MessageLoader interface {
	RecentMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]*conversation.Message, error)
}

// Cache is the per-conversation context window cache.
//
// Cache is safe for concurrent use. Concurrent misses for the same
// conversation collapse into a single reconstruction (single-flight); misses
// for distinct conversations never block each other.
type Cache struct {
	loader MessageLoader
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[uuid.UUID][]Turn
	group   singleflight.Group
}

// New creates an empty Cache over the given loader.
func New(loader MessageLoader, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		loader:  loader,
		logger:  logger,
		entries: make(map[uuid.UUID][]Turn),
	}
}

// Get returns the conversation's window, reconstructing it from storage on a
// miss. The returned slice is the caller's to keep: it is freshly allocated
// on every call and never aliases cache state.
func (c *Cache) Get(ctx context.Context, conversationID uuid.UUID) ([]Turn, error) {
	c.mu.RLock()
	window, ok := c.entries[conversationID]
	c.mu.RUnlock()
	if ok {
		return slices.Clone(window), nil
	}

	// Single-flight per conversation: concurrent misses for the same ID
	// share one reconstruction; other IDs proceed independently.
	loaded, err, _ := c.group.Do(conversationID.String(), func() (any, error) {
		messages, loadErr := c.loader.RecentMessages(ctx, conversationID, WindowSize)
		if loadErr != nil {
			return nil, fmt.Errorf("reconstructing context window: %w", loadErr)
		}

		window := make([]Turn, 0, len(messages))
		for _, msg := range messages {
			window = append(window, Turn{Role: msg.Role, Content: msg.Content})
		}

		c.mu.Lock()
		c.entries[conversationID] = window
		c.mu.Unlock()

		c.logger.Debug("reconstructed context window",
			"conversation_id", conversationID, "turns", len(window))
		return window, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(loaded.([]Turn)), nil
}

// Set replaces the conversation's entry wholesale. The stored window is a
// fresh copy of the argument, so later caller-side mutation cannot reach the
// cache and resetting one key can never affect another.
func (c *Cache) Set(conversationID uuid.UUID, window []Turn) {
	owned := make([]Turn, len(window))
	copy(owned, window)

	c.mu.Lock()
	c.entries[conversationID] = owned
	c.mu.Unlock()
}

// Append extends an existing entry with new turns, trimming to WindowSize.
// The entry is replaced with a newly allocated window rather than grown in
// place. A conversation without an entry is left absent; the next Get
// reconstructs it from storage.
func (c *Cache) Append(conversationID uuid.UUID, turns ...Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.entries[conversationID]
	if !ok {
		return
	}

	next := make([]Turn, 0, len(current)+len(turns))
	next = append(next, current...)
	next = append(next, turns...)
	if len(next) > WindowSize {
		next = slices.Clone(next[len(next)-WindowSize:])
	}
	c.entries[conversationID] = next
}

// Invalidate removes the conversation's entry entirely.
func (c *Cache) Invalidate(conversationID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, conversationID)
	c.mu.Unlock()
}

// Len reports the number of cached entries. Exposed for tests and stats.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
