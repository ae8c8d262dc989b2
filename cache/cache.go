package cache

import (
	"sync"

	"github.com/livepeer/clip-job-server/log"
)

// Cache is a generic in-memory keyed store, used by the registry to hold
// Job records (§6 "Persisted state: None required by the core" — the
// registry is intentionally ephemeral, living only for the server process).
type Cache[T interface{}] struct {
	cache map[string]T
	mutex sync.Mutex
}

func New[T interface{}]() *Cache[T] {
	return &Cache[T]{
		cache: make(map[string]T),
	}
}

func (c *Cache[T]) Remove(traceID, key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.cache, key)
	log.LogDebug(traceID, "removing from cache", "key", key)
}

func (c *Cache[T]) Get(key string) (T, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	info, ok := c.cache[key]
	return info, ok
}

func (c *Cache[T]) Store(key string, value T) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache[key] = value
}

// Keys returns a snapshot of every key currently stored, used by the
// registry to walk its jobs without holding the cache lock across callbacks.
func (c *Cache[T]) Keys() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	keys := make([]string, 0, len(c.cache))
	for k := range c.cache {
		keys = append(keys, k)
	}
	return keys
}

func (c *Cache[T]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.cache)
}

func (c *Cache[T]) UnittestIntrospection() *map[string]T {
	return &c.cache
}
