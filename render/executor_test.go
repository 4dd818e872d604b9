package render

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vizflow/errors"
	"github.com/c360/vizflow/types"
)

func testExecutor() *Executor {
	return NewExecutor(WithSettleDelay(0))
}

func testPayload() types.Payload {
	return types.Payload{Data: []byte("HEADER test"), Format: "pdb"}
}

func TestRenderSequence(t *testing.T) {
	engine := NewRecordingEngine()
	surface := NewOffscreenSurface("s1", 640, 480)

	style := types.StyleOptions{
		Representation: "stick",
		ColorScheme:    "element",
		ShowSurface:    true,
		SurfaceKind:    "VDW",
		SurfaceOpacity: 0.6,
		ShowLabels:     true,
		Background:     "white",
	}

	err := testExecutor().Render(context.Background(), engine, surface, testPayload(), style)
	require.NoError(t, err)
	assert.Equal(t, 1, surface.Clears(), "surface cleared before drawing")

	ops := make([]string, 0)
	for _, call := range engine.Calls("s1") {
		ops = append(ops, call.Op)
	}
	assert.Equal(t, []string{
		"loadModel", "applyStyle", "addSurface", "addLabels", "setBackground", "fitView", "flush",
	}, ops)
}

func TestOverrideOrderingLastWriteWins(t *testing.T) {
	engine := NewRecordingEngine()
	surface := NewOffscreenSurface("s1", 640, 480)

	style := types.StyleOptions{
		Representation: "cartoon",
		ColorScheme:    "spectrum",
		Selections: []types.Selection{
			{Region: "A", Style: "sphere"},
			{Region: "A", Style: "stick"},
		},
	}

	err := testExecutor().Render(context.Background(), engine, surface, testPayload(), style)
	require.NoError(t, err)

	final := engine.FinalStyles("s1")
	assert.Equal(t, "stick", final["A"].Representation,
		"later override must win on overlapping regions")
	assert.Equal(t, "cartoon", final[""].Representation)
}

func TestRenderIdempotentAcrossSurfaces(t *testing.T) {
	engine := NewRecordingEngine()
	s1 := NewOffscreenSurface("s1", 640, 480)
	s2 := NewOffscreenSurface("s2", 320, 240)

	style := types.StyleOptions{
		Representation: "stick",
		ColorScheme:    "element",
		Selections:     []types.Selection{{Region: "B", Style: "cartoon", Color: "red"}},
	}

	exec := testExecutor()
	require.NoError(t, exec.Render(context.Background(), engine, s1, testPayload(), style))
	require.NoError(t, exec.Render(context.Background(), engine, s2, testPayload(), style))

	// Equivalent draw-call sequences on both surfaces.
	assert.Equal(t, engine.Calls("s1"), engine.Calls("s2"))
}

func TestPrimaryStyleFailureIsFatal(t *testing.T) {
	engine := NewRecordingEngine()
	engine.FailRegion = "A"
	surface := NewOffscreenSurface("s1", 640, 480)

	style := types.StyleOptions{
		Representation: "stick",
		Selections:     []types.Selection{{Region: "A", Style: "sphere"}},
	}

	err := testExecutor().Render(context.Background(), engine, surface, testPayload(), style)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrRenderFailed))
}

func TestSecondaryPassFailuresDegrade(t *testing.T) {
	engine := NewRecordingEngine()
	engine.FailSurface = true
	engine.FailLabels = true
	surface := NewOffscreenSurface("s1", 640, 480)

	style := types.StyleOptions{
		Representation: "stick",
		ShowSurface:    true,
		ShowLabels:     true,
	}

	err := testExecutor().Render(context.Background(), engine, surface, testPayload(), style)
	assert.NoError(t, err, "surface/label failures must not abort the render")

	ops := make([]string, 0)
	for _, call := range engine.Calls("s1") {
		ops = append(ops, call.Op)
	}
	assert.Contains(t, ops, "flush", "render completes despite degraded passes")
}

func TestLoadModelFailureIsFatal(t *testing.T) {
	engine := NewRecordingEngine()
	engine.FailLoad = true
	surface := NewOffscreenSurface("s1", 640, 480)

	err := testExecutor().Render(context.Background(), engine, surface, testPayload(), types.StyleOptions{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrRenderFailed))
	assert.Empty(t, engine.Calls("s1"))
}

func TestFlushFailureIsFatal(t *testing.T) {
	engine := NewRecordingEngine()
	engine.FailFlush = true
	surface := NewOffscreenSurface("s1", 640, 480)

	err := testExecutor().Render(context.Background(), engine, surface, testPayload(), types.StyleOptions{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrRenderFailed))
}

func TestNonEngineHandleRejected(t *testing.T) {
	surface := NewOffscreenSurface("s1", 640, 480)
	err := testExecutor().Render(context.Background(), "not an engine", surface, testPayload(), types.StyleOptions{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrRenderFailed))
}
