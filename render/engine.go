// Package render executes the idempotent draw sequence against a loaded
// engine and a caller-supplied surface.
//
// Third-party draw engines expose loosely-typed APIs; this package depends
// only on the narrow Engine capability set (load, style, surface, labels,
// fit, flush) so the pipeline never sees a specific external API shape.
package render

import "context"

// Surface is a mutable drawable region supplied by the surrounding UI layer.
// The pipeline only needs clear, identity, and size reporting.
type Surface interface {
	// ID distinguishes surfaces in logs and recorded call streams.
	ID() string

	// Clear removes any prior contents so repeated renders are idempotent.
	Clear()

	// Size reports the drawable dimensions.
	Size() (width, height int)
}

// StyleSpec is a single style application: a representation plus an optional
// color or color scheme.
type StyleSpec struct {
	Representation string
	Color          string
}

// Engine is the narrow capability set the executor needs from a loaded draw
// engine. Dependency handles used for rendering must implement it.
type Engine interface {
	// LoadModel loads payload data in the given format into the surface's
	// drawing context.
	LoadModel(ctx context.Context, surface Surface, data []byte, format string) error

	// ApplyStyle styles a region of the model. An empty region targets the
	// whole model (the base style pass).
	ApplyStyle(surface Surface, region string, style StyleSpec) error

	// AddSurface renders a molecular surface overlay. Best-effort pass.
	AddSurface(surface Surface, kind string, opacity float64) error

	// AddLabels renders region labels. Best-effort pass.
	AddLabels(surface Surface) error

	// SetBackground sets the canvas background. Best-effort pass.
	SetBackground(surface Surface, color string) error

	// FitView frames the model in the viewport.
	FitView(surface Surface)

	// Flush issues the engine's draw call. Engines complete visually on
	// their own frame schedule; the executor adds a stabilization delay
	// after a successful flush.
	Flush(ctx context.Context, surface Surface) error
}
