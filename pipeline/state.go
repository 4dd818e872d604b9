// Package pipeline sequences the visualization pipeline for each mounted
// request: global success cache check, dependency load, payload resolution,
// render execution. It owns the per-instance state machine and the
// process-wide render cache.
package pipeline

import (
	"time"

	"github.com/c360/vizflow/types"
)

// State is the per-instance pipeline state. Transitions are monotonic except
// Error -> Idle (explicit retry) and the implicit reset when the governing
// fingerprint changes under the same instance.
type State int

const (
	// StateIdle means no pipeline run has started for the current fingerprint.
	StateIdle State = iota
	// StateLoadingDependencies means the engine dependency load is in flight.
	StateLoadingDependencies
	// StateResolvingPayload means payload resolution is in flight.
	StateResolvingPayload
	// StateRendering means the draw sequence is executing.
	StateRendering
	// StateSuccess means the pipeline completed and the render cache was
	// populated.
	StateSuccess
	// StateError means a stage failed; Retry is available.
	StateError
)

// String returns a string representation of the pipeline state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingDependencies:
		return "loading-dependencies"
	case StateResolvingPayload:
		return "resolving-payload"
	case StateRendering:
		return "rendering"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a state-transition notification published to watchers.
type Event struct {
	InstanceID  string    `json:"instance_id"`
	Fingerprint string    `json:"fingerprint"`
	State       string    `json:"state"`
	Reason      string    `json:"reason,omitempty"`
	Time        time.Time `json:"time"`
}

// RenderEntry records a fully successful render in the global success cache.
// Presence means the pipeline's load and resolve work can be skipped for this
// fingerprint; the draw itself still runs per surface.
type RenderEntry struct {
	CompletedAt   time.Time
	SourceRequest types.VisualizationRequest
}
