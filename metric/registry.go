// Package metric manages Prometheus metrics for the vizflow pipeline. It
// wraps a private prometheus.Registry with duplicate-registration protection
// and exposes the core pipeline metrics plus an HTTP exposition handler.
package metric

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/vizflow/errors"
)

// Registry manages the registration and lifecycle of metrics.
type Registry struct {
	prom       *prometheus.Registry
	Pipeline   *PipelineMetrics
	registered map[string]prometheus.Collector
	mu         sync.RWMutex
}

// NewRegistry creates a new metrics registry with the core pipeline metrics
// and Go runtime collectors pre-registered.
func NewRegistry() *Registry {
	prom := prometheus.NewRegistry()

	r := &Registry{
		prom:       prom,
		registered: make(map[string]prometheus.Collector),
	}

	r.Pipeline = NewPipelineMetrics()
	r.Pipeline.register(prom)

	prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Prometheus returns the underlying Prometheus registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.prom
}

// Register registers a collector under component.name, rejecting duplicates
// at both the registry-wrapper and Prometheus level.
func (r *Registry) Register(component, name string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, name)
	if _, exists := r.registered[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for component %s", name, component),
			"Registry", "Register", "duplicate metric registration")
	}

	if err := r.prom.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "Registry", "Register",
				fmt.Sprintf("prometheus conflict for metric %s", name))
		}
		return errors.WrapFatal(err, "Registry", "Register",
			"failed to register collector with prometheus")
	}

	r.registered[key] = collector
	return nil
}

// Unregister removes a collector by component and name. Returns true if the
// collector was registered.
func (r *Registry) Unregister(component, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, name)
	collector, exists := r.registered[key]
	if !exists {
		return false
	}

	delete(r.registered, key)
	return r.prom.Unregister(collector)
}

// Handler returns the HTTP exposition handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}
