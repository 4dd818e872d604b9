package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/vizflow/types"
)

func baseRequest() types.VisualizationRequest {
	return types.VisualizationRequest{
		Kind:       types.KindRemoteID,
		Identifier: "2244",
		Style: types.StyleOptions{
			Representation: "stick",
			ColorScheme:    "element",
		},
	}
}

func TestComputeDeterministic(t *testing.T) {
	a := Compute(baseRequest())
	b := Compute(baseRequest())
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "remote-id:2244:stick:element:[]"), "got %q", a)
}

func TestComputeDistinguishesAppearanceFields(t *testing.T) {
	base := Compute(baseRequest())

	mutations := map[string]func(*types.VisualizationRequest){
		"identifier":      func(r *types.VisualizationRequest) { r.Identifier = "4HHB" },
		"kind":            func(r *types.VisualizationRequest) { r.Kind = types.KindNotation },
		"representation":  func(r *types.VisualizationRequest) { r.Style.Representation = "sphere" },
		"color scheme":    func(r *types.VisualizationRequest) { r.Style.ColorScheme = "spectrum" },
		"show surface":    func(r *types.VisualizationRequest) { r.Style.ShowSurface = true },
		"surface kind":    func(r *types.VisualizationRequest) { r.Style.SurfaceKind = "VDW" },
		"surface opacity": func(r *types.VisualizationRequest) { r.Style.SurfaceOpacity = 0.7 },
		"show labels":     func(r *types.VisualizationRequest) { r.Style.ShowLabels = true },
		"background":      func(r *types.VisualizationRequest) { r.Style.Background = "black" },
		"selections": func(r *types.VisualizationRequest) {
			r.Style.Selections = []types.Selection{{Region: "A", Style: "stick"}}
		},
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			req := baseRequest()
			mutate(&req)
			assert.NotEqual(t, base, Compute(req), "field %q must affect the fingerprint", name)
		})
	}
}

func TestComputeIgnoresDisplayOnlyFields(t *testing.T) {
	req := baseRequest()
	req.Title = "Aspirin"
	req.Description = "acetylsalicylic acid"
	assert.Equal(t, Compute(baseRequest()), Compute(req))
}

func TestSelectionOrderIsObservable(t *testing.T) {
	a := baseRequest()
	a.Style.Selections = []types.Selection{
		{Region: "A", Style: "sphere"},
		{Region: "A", Style: "stick"},
	}

	b := baseRequest()
	b.Style.Selections = []types.Selection{
		{Region: "A", Style: "stick"},
		{Region: "A", Style: "sphere"},
	}

	assert.NotEqual(t, Compute(a), Compute(b))
}

func TestEscapingPreventsStructuralCollisions(t *testing.T) {
	a := baseRequest()
	a.Identifier = "x:y"
	a.Style.Representation = "stick"

	b := baseRequest()
	b.Identifier = "x"
	b.Style.Representation = "y:stick"

	assert.NotEqual(t, Compute(a), Compute(b))
}

func TestComputeIsTotal(t *testing.T) {
	// Zero-value request still produces a stable, non-panicking key.
	var req types.VisualizationRequest
	assert.Equal(t, Compute(req), Compute(req))
	assert.NotEmpty(t, Compute(req))
}
