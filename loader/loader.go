// Package loader provides process-wide, at-most-once loading of named
// external engine modules.
//
// Each dependency name moves through NotLoaded -> Loading -> Loaded, with
// failures returning to NotLoaded so the next caller retries. Concurrent
// callers for the same name share the single in-flight load; none of the
// host-specific load mechanics (script injection, global polling) leak past
// the registered LoadFunc.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/c360/vizflow/errors"
	"github.com/c360/vizflow/metric"
)

// DefaultTimeout bounds a single load attempt.
const DefaultTimeout = 30 * time.Second

// LoadFunc performs the actual load of a dependency and returns its handle.
// It is invoked at most once per in-flight attempt, under a timeout-bounded
// context detached from any caller's cancellation.
type LoadFunc func(ctx context.Context) (any, error)

// State is the load state of a dependency name.
type State int

const (
	// StateNotLoaded means no load has succeeded and none is in flight.
	StateNotLoaded State = iota
	// StateLoading means a load is currently in flight.
	StateLoading
	// StateLoaded means the handle is available.
	StateLoaded
)

// String returns a string representation of the load state.
func (s State) String() string {
	switch s {
	case StateNotLoaded:
		return "not-loaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Loader ensures each named dependency is loaded at most once process-wide.
type Loader struct {
	mu      sync.Mutex
	loadFns map[string]LoadFunc
	handles map[string]any
	loading map[string]bool

	group   singleflight.Group
	timeout time.Duration
	logger  *slog.Logger
	metrics *metric.PipelineMetrics
}

// Option configures the loader.
type Option func(*Loader)

// WithTimeout overrides the per-attempt load timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(l *Loader) {
		if timeout > 0 {
			l.timeout = timeout
		}
	}
}

// WithLogger sets the loader's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics attaches pipeline metrics for dedup observability.
func WithMetrics(m *metric.PipelineMetrics) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

// New creates a loader with no registered dependencies.
func New(opts ...Option) *Loader {
	l := &Loader{
		loadFns: make(map[string]LoadFunc),
		handles: make(map[string]any),
		loading: make(map[string]bool),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register associates a load function with a dependency name. Registering a
// name twice is a configuration error.
func (l *Loader) Register(name string, fn LoadFunc) error {
	if name == "" || fn == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "loader", "Register",
			"name and load function are required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.loadFns[name]; exists {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "loader", "Register",
			"dependency "+name+" already registered")
	}
	l.loadFns[name] = fn
	return nil
}

// Ensure returns the handle for name, loading it if necessary. All callers
// racing on the same name share one load; the caller's context governs only
// its own wait, never the shared load, so an abandoned Ensure still lets the
// load complete and store the handle for future callers.
func (l *Loader) Ensure(ctx context.Context, name string) (any, error) {
	l.mu.Lock()
	if handle, ok := l.handles[name]; ok {
		l.mu.Unlock()
		return handle, nil
	}
	fn, registered := l.loadFns[name]
	l.mu.Unlock()

	if !registered {
		return nil, errors.WrapInvalid(errors.ErrDependencyUnknown, "loader", "Ensure",
			"load "+name)
	}

	ch := l.group.DoChan(name, func() (any, error) {
		return l.load(name, fn)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared && l.metrics != nil {
			l.metrics.SharedWaits.WithLabelValues("load").Inc()
		}
		return res.Val, nil
	case <-ctx.Done():
		// The shared load keeps running; only this caller gives up.
		return nil, ctx.Err()
	}
}

// load performs the shared load attempt for one name.
func (l *Loader) load(name string, fn LoadFunc) (handle any, err error) {
	// Re-validate after suspension: another caller may have completed this
	// load while we were queued behind the singleflight.
	l.mu.Lock()
	if existing, ok := l.handles[name]; ok {
		l.mu.Unlock()
		return existing, nil
	}
	l.loading[name] = true
	l.mu.Unlock()

	start := time.Now()
	defer func() {
		l.mu.Lock()
		delete(l.loading, name)
		if err == nil {
			l.handles[name] = handle
		}
		l.mu.Unlock()

		if l.metrics != nil {
			l.metrics.ObserveStage("load", err, time.Since(start))
		}
	}()

	// The load is detached from caller cancellation and bounded only by the
	// loader's own timeout.
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(context.Background()), l.timeout)
	defer cancel()

	type result struct {
		handle any
		err    error
	}
	done := make(chan result, 1)
	go func() {
		h, loadErr := fn(loadCtx)
		done <- result{handle: h, err: loadErr}
	}()

	// Race the load against the timeout so load functions that ignore their
	// context cannot wedge the name in Loading forever.
	select {
	case res := <-done:
		if res.err != nil {
			// A load function that surfaces its own context error counts as
			// a timeout, same as losing the race below.
			if loadCtx.Err() != nil {
				l.logger.Warn("dependency load timed out", "dependency", name, "timeout", l.timeout)
				return nil, errors.Wrap(errors.ErrDependencyLoadTimeout, "loader", "load", "load "+name)
			}
			l.logger.Warn("dependency load failed", "dependency", name, "error", res.err)
			cause := fmt.Errorf("%w: %w", errors.ErrDependencyLoadFailed, res.err)
			return nil, errors.Wrap(cause, "loader", "load", "load "+name)
		}
		l.logger.Info("dependency loaded", "dependency", name, "elapsed", time.Since(start))
		return res.handle, nil
	case <-loadCtx.Done():
		l.logger.Warn("dependency load timed out", "dependency", name, "timeout", l.timeout)
		return nil, errors.Wrap(errors.ErrDependencyLoadTimeout, "loader", "load", "load "+name)
	}
}

// State reports the load state for a dependency name.
func (l *Loader) State(name string) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.handles[name]; ok {
		return StateLoaded
	}
	if l.loading[name] {
		return StateLoading
	}
	return StateNotLoaded
}

// Loaded returns the stored handle for name without triggering a load.
func (l *Loader) Loaded(name string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	handle, ok := l.handles[name]
	return handle, ok
}

// Invalidate drops a stored handle so the next Ensure reloads it. In-flight
// loads are unaffected. Returns true if a handle was dropped.
func (l *Loader) Invalidate(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.handles[name]; !ok {
		return false
	}
	delete(l.handles, name)
	return true
}
