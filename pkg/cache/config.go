package cache

import (
	"fmt"

	"github.com/c360/vizflow/errors"
)

// Strategy defines the eviction strategy for the cache.
type Strategy string

const (
	// StrategySimple uses no eviction policy.
	StrategySimple Strategy = "simple"

	// StrategyLRU uses least-recently-used eviction bounded by entry count.
	StrategyLRU Strategy = "lru"
)

// Config contains configuration for cache creation.
type Config struct {
	// Enabled determines if caching is enabled. A disabled cache always
	// misses, forcing the pipeline to redo work on every request.
	Enabled bool `json:"enabled"`

	// Strategy determines the eviction strategy.
	Strategy Strategy `json:"strategy"`

	// MaxSize is the maximum number of entries (LRU only).
	MaxSize int `json:"max_size"`
}

// DefaultConfig returns a bounded LRU configuration. Unbounded growth is a
// known hazard of fingerprint-keyed caches, so LRU is the default.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Strategy: StrategyLRU,
		MaxSize:  1024,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch c.Strategy {
	case StrategySimple:
	case StrategyLRU:
		if c.MaxSize <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
				fmt.Sprintf("max_size must be positive for LRU cache, got %d", c.MaxSize))
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("unknown cache strategy: %s", c.Strategy))
	}
	return nil
}

// NewFromConfig creates a cache based on the provided configuration.
// Returns a Noop cache if config.Enabled is false.
func NewFromConfig[V any](config Config, options ...Option[V]) (Cache[V], error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "cache", "NewFromConfig", "config validation")
	}

	if !config.Enabled {
		return NewNoop[V](), nil
	}

	switch config.Strategy {
	case StrategySimple:
		return NewSimple[V](options...)
	case StrategyLRU:
		return NewLRU[V](config.MaxSize, options...)
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewFromConfig",
			fmt.Sprintf("unsupported cache strategy: %s", config.Strategy))
	}
}

// NewLRU creates a new LRU cache with the specified maximum size.
func NewLRU[V any](maxSize int, options ...Option[V]) (Cache[V], error) {
	return newLRUCache[V](maxSize, applyOptions(options...))
}

// NewSimple creates a new cache with no eviction policy.
func NewSimple[V any](options ...Option[V]) (Cache[V], error) {
	return newSimpleCache[V](applyOptions(options...))
}

// NewNoop creates a cache that stores nothing and always misses.
func NewNoop[V any]() Cache[V] {
	return &noopCache[V]{}
}

// noopCache backs the disabled configuration.
type noopCache[V any] struct{}

func (c *noopCache[V]) Get(_ string) (V, bool) {
	var zero V
	return zero, false
}

func (c *noopCache[V]) Set(_ string, _ V) (bool, error) { return false, nil }
func (c *noopCache[V]) Delete(_ string) (bool, error)   { return false, nil }
func (c *noopCache[V]) Clear() error                    { return nil }
func (c *noopCache[V]) Size() int                       { return 0 }
func (c *noopCache[V]) Keys() []string                  { return nil }
func (c *noopCache[V]) Stats() *Statistics              { return nil }
func (c *noopCache[V]) Close() error                    { return nil }
