package cache

import "github.com/c360/vizflow/metric"

// Option configures cache behavior using the functional options pattern.
type Option[V any] func(*cacheOptions[V])

// cacheOptions holds internal configuration for cache instances. Statistics
// are always collected; Prometheus export is opt-in via WithMetrics.
type cacheOptions[V any] struct {
	metricsReg    *metric.Registry
	metricsPrefix string
	evictCallback EvictCallback[V]
}

// WithMetrics enables Prometheus metrics export for cache statistics.
// The prefix becomes the cache label on every exported series. If registry
// is nil or prefix is empty, the option is ignored.
func WithMetrics[V any](registry *metric.Registry, prefix string) Option[V] {
	return func(opts *cacheOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets a callback invoked with the key and value of
// every evicted or deleted entry.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *cacheOptions[V]) {
		opts.evictCallback = callback
	}
}

func applyOptions[V any](options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}

// maybeMetrics registers Prometheus metrics when requested.
func maybeMetrics[V any](opts *cacheOptions[V]) (*cacheMetrics, error) {
	if opts.metricsReg == nil || opts.metricsPrefix == "" {
		return nil, nil
	}
	return newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
}
