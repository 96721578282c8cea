// Package token encodes search queries into size-bounded pagination tokens
// and decodes them back, degrading through progressively lossier stages
// when a query does not fit the transport's callback-data budget.
package token

import (
	"context"
	"sync"

	"github.com/qiaoborui/telegram-search-bot/internal/search"
)

// SessionCache holds the most recent full query per caller. It backs the
// final encoding stage, when a query cannot be squeezed into the token
// itself. Entries are whole-value replacements: the latest search by a
// caller wins, and entries may be evicted at any time.
type SessionCache interface {
	Put(ctx context.Context, callerID int64, q search.Query) error
	Get(ctx context.Context, callerID int64) (search.Query, bool, error)
}

// MemoryCache is an in-process SessionCache for single-instance
// deployments and tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[int64]search.Query
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[int64]search.Query)}
}

func (c *MemoryCache) Put(_ context.Context, callerID int64, q search.Query) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[callerID] = q
	return nil
}

func (c *MemoryCache) Get(_ context.Context, callerID int64) (search.Query, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.entries[callerID]
	return q, ok, nil
}
