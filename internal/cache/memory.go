package cache

import (
	"context"
	"sync"
	"time"

	"github.com/teemulinna/council/internal/modelclient"
)

// MemoryCache is an in-process Cache backed by a mutex-guarded map. Suitable
// for a single councild instance; does not survive restarts and is not
// shared across instances.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	hits    int64
	misses  int64
}

type memoryEntry struct {
	Entry
	expiresAt time.Time // zero means no expiry
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, modelID string, messages []modelclient.Message) (modelclient.Response, bool, error) {
	key := Key(modelID, messages)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return modelclient.Response{}, false, nil
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(timeNow()) {
		delete(c.entries, key)
		c.misses++
		return modelclient.Response{}, false, nil
	}
	c.hits++
	return e.Response, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, modelID string, messages []modelclient.Message, resp modelclient.Response, ttl time.Duration) error {
	key := Key(modelID, messages)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = timeNow().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{
		Entry:     Entry{Response: resp, StoredAt: timeNow()},
		expiresAt: expiresAt,
	}
	return nil
}

// Stats implements Cache.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses}
}

// SweepExpired deletes all currently-expired entries and returns the count
// removed. Intended to be called periodically so long-lived processes don't
// accumulate dead entries between Gets.
func (c *MemoryCache) SweepExpired() int {
	now := timeNow()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if !e.expiresAt.IsZero() && !e.expiresAt.After(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// timeNow is a var so tests can freeze time.
var timeNow = time.Now
