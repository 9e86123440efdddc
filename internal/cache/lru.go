package cache

import (
	"container/list"
	"sync"
)

// Cache is a bounded, concurrency-safe LRU map with string keys. The
// pipeline injects one per concern (classification, consent, age) so cache
// lifecycle and invalidation are explicit rather than ambient state.
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List

	hits   uint64
	misses uint64
}

type cacheEntry[V any] struct {
	key   string
	value V
}

// New creates a cache holding at most capacity entries. A capacity of zero
// or less disables caching entirely; every Get is a miss.
func New[V any](capacity int) *Cache[V] {
	return &Cache[V]{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached value for key and whether it was present.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		c.hits++
		return elem.Value.(*cacheEntry[V]).value, true
	}

	c.misses++
	var zero V
	return zero, false
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *Cache[V]) Set(key string, value V) {
	if c.capacity <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry[V]).value = value
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry[V]).key)
		}
	}

	c.entries[key] = c.order.PushFront(&cacheEntry[V]{key: key, value: value})
}

// Invalidate removes a single key. It is the hook external change events
// (consent updates, profile edits) call into.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}
}

// InvalidatePrefix removes every key beginning with prefix. Used to drop
// all cached tuples for one user regardless of the category suffix.
func (c *Cache[V]) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		entry := elem.Value.(*cacheEntry[V])
		if len(entry.key) >= len(prefix) && entry.key[:len(prefix)] == prefix {
			c.order.Remove(elem)
			delete(c.entries, entry.key)
		}
		elem = next
	}
}

// Flush removes every entry. Called when the policy configuration reloads.
func (c *Cache[V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the current number of cached entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns cumulative hit and miss counts.
func (c *Cache[V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
