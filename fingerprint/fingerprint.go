// Package fingerprint derives the deterministic cache key for a
// visualization request.
//
// The fingerprint is a total function of the request's identity fields (kind,
// identifier) and a canonical serialization of its style bundle. Two requests
// with equal fingerprints are visually indistinguishable; any field that
// affects appearance changes the fingerprint. A structural concatenation is
// used instead of a lossy hash so keys stay debuggable in logs and cache
// listings.
package fingerprint

import (
	"strconv"
	"strings"

	"github.com/c360/vizflow/types"
)

// fieldSep separates top-level fingerprint fields. Embedded separators in
// user-supplied values are escaped so structurally different requests cannot
// collide by concatenation.
const (
	fieldSep     = ":"
	selectionSep = "|"
	partSep      = ","
)

// Compute returns the fingerprint for a request. It never fails: malformed
// or missing optional fields degrade to their default serialization.
func Compute(req types.VisualizationRequest) string {
	var b strings.Builder

	// Identity fields first, then style in declaration order.
	writeField(&b, string(req.Kind))
	writeField(&b, req.Identifier)
	writeField(&b, req.Style.Representation)
	writeField(&b, req.Style.ColorScheme)
	writeField(&b, serializeSelections(req.Style.Selections))
	writeField(&b, strconv.FormatBool(req.Style.ShowSurface))
	writeField(&b, req.Style.SurfaceKind)
	writeField(&b, strconv.FormatFloat(req.Style.SurfaceOpacity, 'g', -1, 64))
	writeField(&b, strconv.FormatBool(req.Style.ShowLabels))
	writeField(&b, req.Style.Background)

	return strings.TrimSuffix(b.String(), fieldSep)
}

// serializeSelections renders the override list order-sensitively.
// Last-write-wins semantics make order observable, so [A,B] and [B,A] must
// fingerprint differently.
func serializeSelections(sels []types.Selection) string {
	if len(sels) == 0 {
		return "[]"
	}

	parts := make([]string, 0, len(sels))
	for _, s := range sels {
		parts = append(parts, escape(s.Region)+partSep+escape(s.Style)+partSep+escape(s.Color))
	}
	return "[" + strings.Join(parts, selectionSep) + "]"
}

func writeField(b *strings.Builder, v string) {
	b.WriteString(escape(v))
	b.WriteString(fieldSep)
}

// escape guards the structural separators inside user-supplied values.
func escape(v string) string {
	if !strings.ContainsAny(v, `:|,\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, ":", `\c`, "|", `\p`, ",", `\m`)
	return r.Replace(v)
}
