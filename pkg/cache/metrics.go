package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/vizflow/metric"
)

// cacheMetrics holds Prometheus metrics for cache operations. All methods
// are nil-receiver safe so callers need no metrics-enabled check.
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	sets      prometheus.Counter
	deletes   prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

// newCacheMetrics creates and registers cache metrics with the registry.
// The prefix names the cache (e.g. "payload", "render") and becomes the
// cache label on every series.
func newCacheMetrics(registry *metric.Registry, prefix string) (*cacheMetrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "vizflow",
			Subsystem:   "cache",
			Name:        name,
			ConstLabels: prometheus.Labels{"cache": prefix},
			Help:        help,
		})
	}

	m := &cacheMetrics{
		hits:      counter("hits_total", "Total number of cache hits"),
		misses:    counter("misses_total", "Total number of cache misses"),
		sets:      counter("sets_total", "Total number of cache set operations"),
		deletes:   counter("deletes_total", "Total number of cache delete operations"),
		evictions: counter("evictions_total", "Total number of cache evictions"),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "vizflow",
			Subsystem:   "cache",
			Name:        "size",
			ConstLabels: prometheus.Labels{"cache": prefix},
			Help:        "Current number of entries in cache",
		}),
	}

	registrations := map[string]prometheus.Collector{
		"hits":      m.hits,
		"misses":    m.misses,
		"sets":      m.sets,
		"deletes":   m.deletes,
		"evictions": m.evictions,
		"size":      m.size,
	}
	for name, collector := range registrations {
		if err := registry.Register(prefix, "cache_"+name, collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *cacheMetrics) recordHit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *cacheMetrics) recordMiss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *cacheMetrics) recordSet() {
	if m != nil {
		m.sets.Inc()
	}
}

func (m *cacheMetrics) recordDelete() {
	if m != nil {
		m.deletes.Inc()
	}
}

func (m *cacheMetrics) recordEviction() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *cacheMetrics) updateSize(size int) {
	if m != nil {
		m.size.Set(float64(size))
	}
}
