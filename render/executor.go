package render

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/vizflow/errors"
	"github.com/c360/vizflow/metric"
	"github.com/c360/vizflow/types"
)

// DefaultSettleDelay is the pause after flush before a render is reported
// complete. Draw engines finish visually on their own frame schedule, so
// "done" must mean visually complete, not merely "draw call issued".
const DefaultSettleDelay = 150 * time.Millisecond

// Executor applies style options to a loaded engine handle and a resolved
// payload, drawing into a supplied surface. It is stateless between calls.
type Executor struct {
	settle  time.Duration
	logger  *slog.Logger
	metrics *metric.PipelineMetrics
}

// Option configures the executor.
type Option func(*Executor)

// WithSettleDelay overrides the post-flush stabilization delay.
func WithSettleDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d >= 0 {
			e.settle = d
		}
	}
}

// WithLogger sets the executor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metric.PipelineMetrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// NewExecutor creates a render executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		settle: DefaultSettleDelay,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render draws the payload into the surface with the given style options.
//
// The sequence is: clear, load model, base style, per-region overrides in
// list order (last-write-wins on overlapping regions), then the best-effort
// secondary passes (surface, labels, background), fit, flush, settle.
// Failure in the primary passes is fatal for the call; secondary passes
// degrade gracefully with a warning.
func (e *Executor) Render(ctx context.Context, handle any, surface Surface,
	payload types.Payload, style types.StyleOptions) (err error) {

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.ObserveStage("render", err, time.Since(start))
		}
	}()

	engine, ok := handle.(Engine)
	if !ok {
		return errors.WrapFatal(
			fmt.Errorf("%w: handle %T does not implement render.Engine", errors.ErrRenderFailed, handle),
			"render", "Render", "engine capability check")
	}
	if surface == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: nil surface", errors.ErrRenderFailed),
			"render", "Render", "surface check")
	}

	// Idempotency: prior contents never leak into this render.
	surface.Clear()

	if loadErr := engine.LoadModel(ctx, surface, payload.Data, payload.Format); loadErr != nil {
		return e.fatal("load model", surface, loadErr)
	}

	// Primary style pass: base style over the whole model.
	base := StyleSpec{Representation: style.Representation, Color: style.ColorScheme}
	if styleErr := engine.ApplyStyle(surface, "", base); styleErr != nil {
		return e.fatal("apply base style", surface, styleErr)
	}

	// Per-region overrides in list order. Later entries win on overlapping
	// regions because each application replaces the region's style.
	for i, sel := range style.Selections {
		spec := StyleSpec{Representation: sel.Style, Color: sel.Color}
		if styleErr := engine.ApplyStyle(surface, sel.Region, spec); styleErr != nil {
			return e.fatal(fmt.Sprintf("apply override %d (%s)", i, sel.Region), surface, styleErr)
		}
	}

	// Secondary passes are additive: they degrade without failing the render.
	if style.ShowSurface {
		if surfErr := engine.AddSurface(surface, style.SurfaceKind, style.SurfaceOpacity); surfErr != nil {
			e.logger.Warn("surface pass degraded", "surface", surface.ID(), "error", surfErr)
		}
	}
	if style.ShowLabels {
		if labelErr := engine.AddLabels(surface); labelErr != nil {
			e.logger.Warn("label pass degraded", "surface", surface.ID(), "error", labelErr)
		}
	}
	if style.Background != "" {
		if bgErr := engine.SetBackground(surface, style.Background); bgErr != nil {
			e.logger.Warn("background pass degraded", "surface", surface.ID(), "error", bgErr)
		}
	}

	engine.FitView(surface)

	if flushErr := engine.Flush(ctx, surface); flushErr != nil {
		return e.fatal("flush", surface, flushErr)
	}

	// Stabilization: wait out the engine's frame schedule.
	if e.settle > 0 {
		timer := time.NewTimer(e.settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	e.logger.Debug("render complete", "surface", surface.ID(), "elapsed", time.Since(start))
	return nil
}

func (e *Executor) fatal(action string, surface Surface, cause error) error {
	e.logger.Error("render failed", "surface", surface.ID(), "action", action, "error", cause)
	return errors.Wrap(fmt.Errorf("%w: %w", errors.ErrRenderFailed, cause), "render", "Render", action)
}
