package cache

import (
	"context"
	"sync"
	"time"

	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// MemoryCache
// -----------------------------------------------------------------------------

// MemoryCache is the in-process fallback when no Redis URL is configured.
// Same contract as the Redis gateway, including entry age reporting, so the
// aggregation engine never knows which one it talks to.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	resp      *models.MAggregationResponse
	storedAt  time.Time
	expiresAt time.Time
}

// -----------------------------------------------------------------------------

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// -----------------------------------------------------------------------------

func (c *MemoryCache) Get(ctx context.Context, mint string) (*models.MAggregationResponse, time.Duration, bool) {
	c.mu.RLock()
	entry, ok := c.entries[mint]
	c.mu.RUnlock()

	if !ok {
		return nil, 0, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, mint)
		c.mu.Unlock()
		return nil, 0, false
	}

	return entry.resp, time.Since(entry.storedAt), true
}

// -----------------------------------------------------------------------------

func (c *MemoryCache) Set(ctx context.Context, mint string, resp *models.MAggregationResponse, ttl time.Duration) error {
	now := time.Now()
	c.mu.Lock()
	c.entries[mint] = memoryEntry{resp: resp, storedAt: now, expiresAt: now.Add(ttl)}
	c.mu.Unlock()
	return nil
}

// -----------------------------------------------------------------------------

func (c *MemoryCache) Invalidate(ctx context.Context, mint string) error {
	c.mu.Lock()
	delete(c.entries, mint)
	c.mu.Unlock()
	return nil
}
