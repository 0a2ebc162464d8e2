package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a size-bounded in-memory cache with per-entry expiry.
type MemoryCache struct {
	entries *lru.Cache[string, cacheEntry]
	now     func() time.Time
}

// NewMemoryCache creates a cache holding at most policy.MaxEntries values.
func NewMemoryCache(policy Policy) *MemoryCache {
	entries, err := lru.New[string, cacheEntry](policy.maxEntries())
	if err != nil {
		// lru.New only fails for a non-positive size, which maxEntries rules out.
		panic(err)
	}
	return &MemoryCache{entries: entries, now: time.Now}
}

// Get returns the value for key unless it is missing or expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	return entry.value, true
}

// Set stores value for ttl. A non-positive TTL stores nothing.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}
	c.entries.Add(key, cacheEntry{value: value, expiresAt: c.now().Add(ttl)})
	return nil
}

// Delete removes key. Idempotent.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

// Purge drops every entry.
func (c *MemoryCache) Purge() {
	c.entries.Purge()
}

// Ensure MemoryCache implements Cache
var _ Cache = (*MemoryCache)(nil)
