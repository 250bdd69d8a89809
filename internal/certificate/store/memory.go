package store

import (
	"context"
	"sync"
	"time"

	"certledger/internal/certificate/ports"
	"certledger/pkg/platform/sentinel"
)

type cachedBlob struct {
	value    []byte
	storedAt time.Time
}

// MemoryCache is an in-process blob cache with TTL expiration.
// A zero TTL keeps entries until overwritten.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cachedBlob
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates an in-memory cache with the given TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cachedBlob),
		ttl:     ttl,
		now:     time.Now,
	}
}

var _ ports.CacheStore = (*MemoryCache)(nil)

// Get returns sentinel.ErrNotFound if the key is absent or has expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || c.expired(entry) {
		return nil, sentinel.ErrNotFound
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set stores a copy of value under key.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedBlob{value: stored, storedAt: c.now()}
	return nil
}

// Purge drops expired entries.
func (c *MemoryCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Health always succeeds.
func (c *MemoryCache) Health(context.Context) error { return nil }

func (c *MemoryCache) expired(e cachedBlob) bool {
	return c.ttl > 0 && c.now().Sub(e.storedAt) >= c.ttl
}
