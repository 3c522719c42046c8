package cache

import "sync"

// EmbeddingCache maps a chunk's content fingerprint to its computed
// embedding. Writes are additive and idempotent (same key, same value), so
// concurrent workers never conflict; entries live for the whole run.
type EmbeddingCache struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

// New creates an empty cache.
func New() *EmbeddingCache {
	return &EmbeddingCache{entries: make(map[string][]float32)}
}

// Lookup returns the embedding stored for hash, if any.
func (c *EmbeddingCache) Lookup(hash string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.entries[hash]
	return vec, ok
}

// Store records an embedding under hash. The first write wins; a concurrent
// duplicate carries the same value, so it is simply dropped.
func (c *EmbeddingCache) Store(hash string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[hash]; ok {
		return
	}
	c.entries[hash] = vec
}

// Len returns the number of distinct fingerprints cached.
func (c *EmbeddingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
