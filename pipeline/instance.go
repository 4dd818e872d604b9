package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	vizerrors "github.com/c360/vizflow/errors"
	"github.com/c360/vizflow/fingerprint"
	"github.com/c360/vizflow/render"
	"github.com/c360/vizflow/types"
)

// Instance is the per-mounted-visualization controller. It sequences the
// pipeline for its surface, exposes retry, and guards against duplicate
// concurrent self-invocation: re-invoking with an unchanged fingerprint
// never starts a second run.
//
// Instance state is transient and dies with Close; the caches it populates
// are process-wide and survive it.
type Instance struct {
	id      string
	coord   *Coordinator
	surface render.Surface

	// runMu serializes pipeline runs for this instance.
	runMu sync.Mutex

	mu      sync.Mutex
	state   State
	lastErr error
	fp      string // fingerprint currently being processed
	req     types.VisualizationRequest
	closed  bool
	cancel  context.CancelFunc
}

// NewInstance mounts a controller over a surface.
func NewInstance(coord *Coordinator, surface render.Surface) (*Instance, error) {
	if coord == nil || surface == nil {
		return nil, vizerrors.WrapInvalid(vizerrors.ErrInvalidConfig, "pipeline", "NewInstance",
			"coordinator and surface are required")
	}

	inst := &Instance{
		id:      uuid.NewString(),
		coord:   coord,
		surface: surface,
		state:   StateIdle,
	}
	if coord.metrics != nil {
		coord.metrics.ActiveInstances.Inc()
	}
	return inst, nil
}

// ID returns the instance identifier.
func (i *Instance) ID() string { return i.id }

// State returns the current pipeline state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Err returns the error behind the current Error state, or nil.
func (i *Instance) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastErr
}

// Fingerprint returns the fingerprint currently governing this instance.
func (i *Instance) Fingerprint() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.fp
}

// Show drives the pipeline for a request, blocking until Success or Error.
// Calling Show again with a request whose fingerprint is unchanged is a
// no-op returning the previous outcome; a changed fingerprint implicitly
// resets the instance and runs the pipeline for the new request.
func (i *Instance) Show(ctx context.Context, req types.VisualizationRequest) error {
	if err := req.Validate(); err != nil {
		return vizerrors.WrapInvalid(err, "pipeline", "Show", "request validation")
	}
	fp := fingerprint.Compute(req)

	i.runMu.Lock()
	defer i.runMu.Unlock()

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return vizerrors.Wrap(vizerrors.ErrInstanceClosed, "pipeline", "Show", "show")
	}
	// Guard: unchanged fingerprint never starts a second pipeline run.
	if i.fp == fp && i.state != StateIdle {
		err := i.lastErr
		i.mu.Unlock()
		return err
	}
	// Fingerprint change (or first show): implicit reset.
	i.fp = fp
	i.req = req
	i.state = StateIdle
	i.lastErr = nil
	runCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.mu.Unlock()

	defer cancel()
	return i.run(runCtx, fp, req)
}

// Retry re-runs the pipeline after an Error. It evicts the fingerprint's
// render cache entry first — and, when evictPayload is set, the payload
// entry too — so the retry can never short-circuit into the same failure
// via a stale cache hit.
func (i *Instance) Retry(ctx context.Context, evictPayload bool) error {
	i.runMu.Lock()
	defer i.runMu.Unlock()

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return vizerrors.Wrap(vizerrors.ErrInstanceClosed, "pipeline", "Retry", "retry")
	}
	if i.state != StateError {
		i.mu.Unlock()
		return vizerrors.Wrap(vizerrors.ErrNotRetryable, "pipeline", "Retry", "retry")
	}
	fp := i.fp
	req := i.req
	i.state = StateIdle
	i.lastErr = nil
	runCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.mu.Unlock()

	i.coord.EvictRender(fp)
	if evictPayload {
		i.coord.resolver.Invalidate(req.Kind, req.Identifier)
	}

	defer cancel()
	return i.run(runCtx, fp, req)
}

// Close unmounts the instance. Any in-flight run is abandoned: no further
// instance state mutation occurs, but shared loads and resolutions already
// in flight continue and still populate the process-wide caches.
func (i *Instance) Close() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	cancel := i.cancel
	i.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if i.coord.metrics != nil {
		i.coord.metrics.ActiveInstances.Dec()
	}
}

// run executes the pipeline for one fingerprint.
func (i *Instance) run(ctx context.Context, fp string, req types.VisualizationRequest) error {
	// Global success cache first: a hit skips dependency and payload work,
	// but the draw still runs against this instance's surface.
	if _, hit := i.coord.CachedRender(fp); hit {
		i.coord.logger.Debug("render cache hit", "instance", i.id, "fingerprint", fp)
		return i.renderOnly(ctx, fp, req)
	}

	i.setState(fp, StateLoadingDependencies, nil)
	handle, err := i.coord.loader.Ensure(ctx, i.coord.cfg.EngineDependency)
	if err != nil {
		return i.fail(fp, err)
	}

	i.setState(fp, StateResolvingPayload, nil)
	payload, err := i.coord.resolver.Resolve(ctx, req.Kind, req.Identifier)
	if err != nil {
		return i.fail(fp, err)
	}

	i.setState(fp, StateRendering, nil)
	if err := i.coord.executor.Render(ctx, handle, i.surface, payload, req.Style); err != nil {
		return i.fail(fp, err)
	}

	// Only a fully successful pass creates the cache entry.
	i.coord.completeRender(fp, RenderEntry{CompletedAt: time.Now(), SourceRequest: req})
	i.setState(fp, StateSuccess, nil)
	i.countRun("success", "")
	return nil
}

// renderOnly redrives the draw for a fingerprint whose pipeline work is
// already cached. The loader and resolver calls below are cheap cache hits
// in the common case; if the payload was evicted in the meantime they
// transparently redo the work.
func (i *Instance) renderOnly(ctx context.Context, fp string, req types.VisualizationRequest) error {
	i.setState(fp, StateRendering, nil)

	handle, err := i.coord.loader.Ensure(ctx, i.coord.cfg.EngineDependency)
	if err != nil {
		return i.fail(fp, err)
	}
	payload, err := i.coord.resolver.Resolve(ctx, req.Kind, req.Identifier)
	if err != nil {
		return i.fail(fp, err)
	}
	if err := i.coord.executor.Render(ctx, handle, i.surface, payload, req.Style); err != nil {
		return i.fail(fp, err)
	}

	i.setState(fp, StateSuccess, nil)
	i.countRun("success", "cache-hit")
	return nil
}

// fail records a stage failure. Abandoned runs (context cancellation from
// Close) skip the Error state: the instance is gone and must not mutate.
func (i *Instance) fail(fp string, err error) error {
	if errors.Is(err, context.Canceled) {
		i.countRun("abandoned", "")
		return err
	}

	i.setState(fp, StateError, err)
	i.countRun("error", vizerrors.Reason(err))
	i.coord.logger.Warn("pipeline run failed",
		"instance", i.id, "fingerprint", fp, "reason", vizerrors.Reason(err))
	return err
}

// setState writes instance state and publishes the transition. Writes are
// suppressed after Close; transitions for a superseded fingerprint are
// likewise dropped.
func (i *Instance) setState(fp string, state State, err error) {
	i.mu.Lock()
	if i.closed || i.fp != fp {
		i.mu.Unlock()
		return
	}
	i.state = state
	i.lastErr = err
	i.mu.Unlock()

	i.coord.publish(i.id, fp, state, vizerrors.Reason(err))
}

func (i *Instance) countRun(state, reason string) {
	if i.coord.metrics != nil {
		i.coord.metrics.RunsTotal.WithLabelValues(state, reason).Inc()
	}
}
