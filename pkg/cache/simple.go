package cache

import "sync"

// simpleCache is a thread-safe map with no eviction policy. Entries live
// until explicitly deleted or cleared.
type simpleCache[V any] struct {
	mu      sync.RWMutex
	items   map[string]V
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[V]
}

func newSimpleCache[V any](opts *cacheOptions[V]) (*simpleCache[V], error) {
	metrics, err := maybeMetrics(opts)
	if err != nil {
		return nil, err
	}

	return &simpleCache[V]{
		items:   make(map[string]V),
		stats:   NewStatistics(),
		metrics: metrics,
		evictFn: opts.evictCallback,
	}, nil
}

func (c *simpleCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	value, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		c.stats.Miss()
		c.metrics.recordMiss()
		var zero V
		return zero, false
	}
	c.stats.Hit()
	c.metrics.recordHit()
	return value, true
}

func (c *simpleCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, existed := c.items[key]
	c.items[key] = value
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	c.metrics.recordSet()
	c.metrics.updateSize(size)
	return !existed, nil
}

func (c *simpleCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	value, existed := c.items[key]
	if existed {
		delete(c.items, key)
	}
	size := len(c.items)
	c.mu.Unlock()

	if !existed {
		return false, nil
	}

	c.stats.Delete()
	c.stats.UpdateSize(int64(size))
	c.metrics.recordDelete()
	c.metrics.updateSize(size)

	if c.evictFn != nil {
		c.evictFn(key, value)
	}
	return true, nil
}

func (c *simpleCache[V]) Clear() error {
	c.mu.Lock()
	old := c.items
	c.items = make(map[string]V)
	c.mu.Unlock()

	c.stats.UpdateSize(0)
	c.metrics.updateSize(0)

	if c.evictFn != nil {
		for key, value := range old {
			c.evictFn(key, value)
		}
	}
	return nil
}

func (c *simpleCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *simpleCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	return keys
}

func (c *simpleCache[V]) Stats() *Statistics {
	return c.stats
}

func (c *simpleCache[V]) Close() error {
	return nil
}
