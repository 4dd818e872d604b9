package render

import (
	"context"
	"fmt"
	"sync"
)

// Call is one recorded engine operation.
type Call struct {
	Op      string
	Region  string
	Style   StyleSpec
	Kind    string
	Opacity float64
	Color   string
	Format  string
	Bytes   int
}

// RecordingEngine is an Engine that records its draw-call sequence per
// surface instead of drawing. It backs headless gateway surfaces, tests
// asserting style-application order, and dry-run diagnostics.
type RecordingEngine struct {
	mu    sync.Mutex
	calls map[string][]Call

	// Failure injection for tests.
	FailLoad    bool
	FailRegion  string // ApplyStyle fails for this region
	FailSurface bool
	FailLabels  bool
	FailFlush   bool
}

// NewRecordingEngine creates an empty recording engine.
func NewRecordingEngine() *RecordingEngine {
	return &RecordingEngine{calls: make(map[string][]Call)}
}

var _ Engine = (*RecordingEngine)(nil)

func (e *RecordingEngine) record(surface Surface, call Call) {
	e.mu.Lock()
	e.calls[surface.ID()] = append(e.calls[surface.ID()], call)
	e.mu.Unlock()
}

// LoadModel records the model load.
func (e *RecordingEngine) LoadModel(_ context.Context, surface Surface, data []byte, format string) error {
	if e.FailLoad {
		return fmt.Errorf("model rejected by engine")
	}
	e.record(surface, Call{Op: "loadModel", Format: format, Bytes: len(data)})
	return nil
}

// ApplyStyle records a style application.
func (e *RecordingEngine) ApplyStyle(surface Surface, region string, style StyleSpec) error {
	if e.FailRegion != "" && region == e.FailRegion {
		return fmt.Errorf("style rejected for region %q", region)
	}
	e.record(surface, Call{Op: "applyStyle", Region: region, Style: style})
	return nil
}

// AddSurface records the surface overlay pass.
func (e *RecordingEngine) AddSurface(surface Surface, kind string, opacity float64) error {
	if e.FailSurface {
		return fmt.Errorf("surface pass unavailable")
	}
	e.record(surface, Call{Op: "addSurface", Kind: kind, Opacity: opacity})
	return nil
}

// AddLabels records the label pass.
func (e *RecordingEngine) AddLabels(surface Surface) error {
	if e.FailLabels {
		return fmt.Errorf("label pass unavailable")
	}
	e.record(surface, Call{Op: "addLabels"})
	return nil
}

// SetBackground records the background pass.
func (e *RecordingEngine) SetBackground(surface Surface, color string) error {
	e.record(surface, Call{Op: "setBackground", Color: color})
	return nil
}

// FitView records the viewport fit.
func (e *RecordingEngine) FitView(surface Surface) {
	e.record(surface, Call{Op: "fitView"})
}

// Flush records the draw flush.
func (e *RecordingEngine) Flush(_ context.Context, surface Surface) error {
	if e.FailFlush {
		return fmt.Errorf("flush rejected")
	}
	e.record(surface, Call{Op: "flush"})
	return nil
}

// Calls returns the recorded call sequence for a surface ID.
func (e *RecordingEngine) Calls(surfaceID string) []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	calls := make([]Call, len(e.calls[surfaceID]))
	copy(calls, e.calls[surfaceID])
	return calls
}

// FinalStyles replays a surface's style applications and returns the final
// per-region outcome under last-write-wins semantics.
func (e *RecordingEngine) FinalStyles(surfaceID string) map[string]StyleSpec {
	final := make(map[string]StyleSpec)
	for _, call := range e.Calls(surfaceID) {
		if call.Op == "applyStyle" {
			final[call.Region] = call.Style
		}
	}
	return final
}

// OffscreenSurface is a headless Surface used by the gateway and tests.
type OffscreenSurface struct {
	id     string
	width  int
	height int

	mu     sync.Mutex
	clears int
}

// NewOffscreenSurface creates a named headless surface.
func NewOffscreenSurface(id string, width, height int) *OffscreenSurface {
	return &OffscreenSurface{id: id, width: width, height: height}
}

// ID returns the surface identifier.
func (s *OffscreenSurface) ID() string { return s.id }

// Clear records a clear pass.
func (s *OffscreenSurface) Clear() {
	s.mu.Lock()
	s.clears++
	s.mu.Unlock()
}

// Size reports the drawable dimensions.
func (s *OffscreenSurface) Size() (int, int) { return s.width, s.height }

// Clears returns how many times the surface has been cleared.
func (s *OffscreenSurface) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}
