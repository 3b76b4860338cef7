// Package cache provides a small in-memory TTL cache used to absorb repeated
// summary and improvement scans between tracker mutations.
package cache

import (
	"sync"
	"time"
)

// TTLCache stores values with per-entry expiry.
type TTLCache struct {
	mu   sync.RWMutex
	data map[string]entry
}

type entry struct {
	value     any
	expiresAt time.Time
}

// New creates an empty TTL cache.
func New() *TTLCache {
	return &TTLCache{data: make(map[string]entry)}
}

// Get retrieves a cached value if present and not expired.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores a value. A non-positive TTL stores it without expiry.
func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.data[key] = entry{value: value, expiresAt: expires}
	c.mu.Unlock()
}

// Invalidate removes a single entry.
func (c *TTLCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Clear removes every entry.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	c.data = make(map[string]entry)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
