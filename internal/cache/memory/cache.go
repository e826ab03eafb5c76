// Package memory keeps pages in-memory, for development and tests.
package memory

import (
	"sync"

	"shelfsync/internal/scrape"
)

// Cache stores raw pages in a map keyed by the cache path.
type Cache struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an in-memory cache.
func New() *Cache {
	return &Cache{data: make(map[string][]byte)}
}

// Get returns the stored page for the key, if any.
func (c *Cache) Get(key scrape.SourceKey) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	body, ok := c.data[key.CachePath()]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), body...), true, nil
}

// Put stores the page, replacing any existing entry.
func (c *Cache) Put(key scrape.SourceKey, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key.CachePath()] = append([]byte(nil), body...)
	return nil
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
