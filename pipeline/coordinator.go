package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/c360/vizflow/errors"
	"github.com/c360/vizflow/loader"
	"github.com/c360/vizflow/metric"
	"github.com/c360/vizflow/pkg/cache"
	"github.com/c360/vizflow/render"
	"github.com/c360/vizflow/resolver"
)

// Config configures the coordinator.
type Config struct {
	// EngineDependency is the loader name of the render engine dependency.
	EngineDependency string `json:"engine_dependency"`
}

// DefaultConfig returns coordinator defaults.
func DefaultConfig() Config {
	return Config{EngineDependency: "render-engine"}
}

// Coordinator wires the pipeline stages to the process-wide caches and fans
// state-transition events out to watchers. All instances share one
// coordinator; all its state is process-wide by design.
type Coordinator struct {
	cfg      Config
	loader   *loader.Loader
	resolver *resolver.Resolver
	executor *render.Executor
	renders  cache.Cache[RenderEntry]
	logger   *slog.Logger
	metrics  *metric.PipelineMetrics

	watchMu  sync.Mutex
	watchers map[int]chan Event
	nextID   int
}

// Option configures the coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metric.PipelineMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// NewCoordinator creates a coordinator over the given stages and render
// cache.
func NewCoordinator(cfg Config, deps *loader.Loader, res *resolver.Resolver,
	exec *render.Executor, renderCache cache.Cache[RenderEntry], opts ...Option) (*Coordinator, error) {

	if deps == nil || res == nil || exec == nil || renderCache == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "pipeline", "NewCoordinator",
			"loader, resolver, executor and render cache are required")
	}
	if cfg.EngineDependency == "" {
		cfg.EngineDependency = DefaultConfig().EngineDependency
	}

	c := &Coordinator{
		cfg:      cfg,
		loader:   deps,
		resolver: res,
		executor: exec,
		renders:  renderCache,
		logger:   slog.Default(),
		watchers: make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CachedRender returns the success-cache entry for a fingerprint.
func (c *Coordinator) CachedRender(fp string) (RenderEntry, bool) {
	return c.renders.Get(fp)
}

// EvictRender drops a fingerprint from the success cache, forcing the next
// run to repeat the full pipeline. Returns true if an entry was dropped.
func (c *Coordinator) EvictRender(fp string) bool {
	dropped, err := c.renders.Delete(fp)
	if err != nil {
		return false
	}
	return dropped
}

// completeRender records a fully successful render. Another instance may
// have completed the same fingerprint while this one was suspended in a
// stage; overwriting with an equivalent entry is harmless.
func (c *Coordinator) completeRender(fp string, entry RenderEntry) {
	if _, err := c.renders.Set(fp, entry); err != nil {
		c.logger.Warn("render cache write failed", "fingerprint", fp, "error", err)
	}
}

// Watch subscribes to state-transition events. The returned cancel function
// must be called to release the subscription. Slow watchers drop events
// rather than stalling the pipeline.
func (c *Coordinator) Watch() (<-chan Event, func()) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()

	id := c.nextID
	c.nextID++
	ch := make(chan Event, 64)
	c.watchers[id] = ch

	cancel := func() {
		c.watchMu.Lock()
		defer c.watchMu.Unlock()
		if existing, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
			close(existing)
		}
	}
	return ch, cancel
}

// publish fans an event out to all watchers, dropping on full buffers.
func (c *Coordinator) publish(instanceID, fp string, state State, reason string) {
	ev := Event{
		InstanceID:  instanceID,
		Fingerprint: fp,
		State:       state.String(),
		Reason:      reason,
		Time:        time.Now(),
	}

	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	for _, ch := range c.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}
