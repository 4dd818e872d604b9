package cache

import (
	"container/list"
	"sync"

	"github.com/c360/vizflow/errors"
)

// lruEntry represents an entry in the LRU cache.
type lruEntry[V any] struct {
	key   string
	value V
}

// lruCache is a thread-safe LRU cache. It evicts the least recently used
// entries when the maximum size is exceeded.
type lruCache[V any] struct {
	mu      sync.RWMutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List // most recently used at the front
	stats   *Statistics
	metrics *cacheMetrics // optional, if metrics enabled
	evictFn EvictCallback[V]
}

func newLRUCache[V any](maxSize int, opts *cacheOptions[V]) (*lruCache[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "newLRUCache", "max size must be positive")
	}

	metrics, err := maybeMetrics(opts)
	if err != nil {
		return nil, err
	}

	return &lruCache[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		stats:   NewStatistics(),
		metrics: metrics,
		evictFn: opts.evictCallback,
	}, nil
}

// Get retrieves a value by key and marks it as recently used.
func (c *lruCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		var zero V
		c.stats.Miss()
		c.metrics.recordMiss()
		return zero, false
	}

	c.order.MoveToFront(element)
	c.stats.Hit()
	c.metrics.recordHit()
	return element.Value.(*lruEntry[V]).value, true
}

// Set stores a value with the given key and marks it as recently used.
func (c *lruCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	var evicted *lruEntry[V]

	c.mu.Lock()
	if element, exists := c.items[key]; exists {
		element.Value.(*lruEntry[V]).value = value
		c.order.MoveToFront(element)
		c.stats.Set()
		c.metrics.recordSet()
		c.mu.Unlock()
		return false, nil
	}

	entry := &lruEntry[V]{key: key, value: value}
	c.items[key] = c.order.PushFront(entry)

	if len(c.items) > c.maxSize {
		if back := c.order.Back(); back != nil {
			evicted = back.Value.(*lruEntry[V])
			c.removeElementLocked(back)
			c.stats.Eviction()
			c.metrics.recordEviction()
		}
	}

	c.stats.Set()
	c.stats.UpdateSize(int64(len(c.items)))
	c.metrics.recordSet()
	c.metrics.updateSize(len(c.items))
	c.mu.Unlock()

	// Eviction callback runs outside the lock to prevent deadlock.
	if evicted != nil && c.evictFn != nil {
		c.evictFn(evicted.key, evicted.value)
	}
	return true, nil
}

// Delete removes an entry by key.
func (c *lruCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	var removed *lruEntry[V]

	c.mu.Lock()
	element, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return false, nil
	}
	removed = element.Value.(*lruEntry[V])
	c.removeElementLocked(element)
	c.stats.Delete()
	c.stats.UpdateSize(int64(len(c.items)))
	c.metrics.recordDelete()
	c.metrics.updateSize(len(c.items))
	c.mu.Unlock()

	if c.evictFn != nil {
		c.evictFn(removed.key, removed.value)
	}
	return true, nil
}

// Clear removes all entries from the cache.
func (c *lruCache[V]) Clear() error {
	var evicted []lruEntry[V]

	c.mu.Lock()
	if c.evictFn != nil {
		evicted = make([]lruEntry[V], 0, len(c.items))
		for element := c.order.Back(); element != nil; element = element.Prev() {
			evicted = append(evicted, *element.Value.(*lruEntry[V]))
		}
	}
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.stats.UpdateSize(0)
	c.metrics.updateSize(0)
	c.mu.Unlock()

	for _, entry := range evicted {
		c.evictFn(entry.key, entry.value)
	}
	return nil
}

// Size returns the current number of entries in the cache.
func (c *lruCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns keys in LRU order, most recently used first.
func (c *lruCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for element := c.order.Front(); element != nil; element = element.Next() {
		keys = append(keys, element.Value.(*lruEntry[V]).key)
	}
	return keys
}

// Stats returns cache statistics.
func (c *lruCache[V]) Stats() *Statistics {
	return c.stats
}

// Close shuts down the cache. The LRU cache holds no background resources.
func (c *lruCache[V]) Close() error {
	return nil
}

// removeElementLocked removes an element from both the list and the map.
// Caller holds the mutex and is responsible for the eviction callback.
func (c *lruCache[V]) removeElementLocked(element *list.Element) {
	entry := element.Value.(*lruEntry[V])
	delete(c.items, entry.key)
	c.order.Remove(element)
}
