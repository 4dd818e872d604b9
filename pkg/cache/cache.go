// Package cache provides generic, thread-safe caches for the vizflow
// pipeline's process-wide state: the identity-keyed payload cache and the
// fingerprint-keyed render success cache.
//
// Two eviction strategies are offered:
//   - SimpleCache: no eviction (stores entries indefinitely)
//   - LRUCache: least-recently-used eviction bounded by entry count
//
// All implementations are thread-safe with always-on statistics and optional
// Prometheus metrics via functional options. A Noop cache backs the disabled
// configuration.
package cache

import (
	"time"

	"github.com/c360/vizflow/errors"
)

// Cache is the generic cache interface all implementations satisfy, keyed by
// string (fingerprints and identity keys) and parameterized by value type V.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found,
	// zero value and false otherwise.
	Get(key string) (V, bool)

	// Set stores a value with the given key. Returns true if a new entry was
	// created, false if an existing entry was updated.
	Set(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries from the cache.
	Clear() error

	// Size returns the current number of entries.
	Size() int

	// Keys returns all keys currently in the cache.
	Keys() []string

	// Stats returns cache statistics, or nil for the noop cache.
	Stats() *Statistics

	// Close releases any resources held by the cache.
	Close() error
}

// EvictCallback is called when an entry is evicted from the cache.
type EvictCallback[V any] func(key string, value V)

// Entry pairs a cached value with its insertion time. Callers that need
// resolvedAt/completedAt metadata embed it in V; Entry exists for cache
// internals and listings.
type Entry[V any] struct {
	Key       string
	Value     V
	CreatedAt time.Time
}

// validateKey rejects keys the cache cannot store.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
