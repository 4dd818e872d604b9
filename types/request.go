// Package types defines the core value types shared across the vizflow
// pipeline. A VisualizationRequest is produced by an upstream tool-calling
// boundary and consumed read-only; this package does not re-validate upstream
// business semantics beyond structural checks.
package types

import (
	"fmt"
	"strings"
)

// Kind tags how an identifier is turned into a renderable payload.
type Kind string

const (
	// KindRemoteID identifies a structure by repository accession; the
	// payload is fetched from the structure repository over HTTP.
	KindRemoteID Kind = "remote-id"

	// KindNotation identifies a structure by a compact linear notation; the
	// payload is produced by local conversion through a loaded dependency.
	KindNotation Kind = "notation"
)

// Valid reports whether the kind is one of the known resolution kinds.
func (k Kind) Valid() bool {
	return k == KindRemoteID || k == KindNotation
}

// Selection applies a style override to a named region of the model.
// Selections are order-significant: later entries override earlier ones on
// overlapping regions (last-write-wins).
type Selection struct {
	Region string `json:"region"`
	Style  string `json:"style"`
	Color  string `json:"color,omitempty"`
}

// StyleOptions bundles every field that affects a request's rendered
// appearance. Identity fields (Kind, Identifier) live on the request itself.
type StyleOptions struct {
	Representation string      `json:"representation"`
	ColorScheme    string      `json:"color_scheme"`
	Selections     []Selection `json:"selections,omitempty"`
	ShowSurface    bool        `json:"show_surface"`
	SurfaceKind    string      `json:"surface_kind,omitempty"`
	SurfaceOpacity float64     `json:"surface_opacity,omitempty"`
	ShowLabels     bool        `json:"show_labels"`
	Background     string      `json:"background,omitempty"`
}

// VisualizationRequest is an immutable request value: a domain identifier, a
// kind tag telling the resolver how to obtain the payload, and the style
// bundle applied at render time. Title and Description ride along for
// display surfaces and never affect the fingerprint's identity fields.
type VisualizationRequest struct {
	Kind        Kind         `json:"kind"`
	Identifier  string       `json:"identifier"`
	Style       StyleOptions `json:"style"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
}

// IdentityKey returns the payload-cache key for the request: identity fields
// only, shared by all style variants of the same identifier.
func (r VisualizationRequest) IdentityKey() string {
	return IdentityKey(r.Kind, r.Identifier)
}

// IdentityKey builds the identity-only key for a (kind, identifier) pair.
func IdentityKey(kind Kind, identifier string) string {
	return fmt.Sprintf("%s:%s", kind, identifier)
}

// Validate performs the structural checks this subsystem owns.
func (r VisualizationRequest) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("unknown kind %q", r.Kind)
	}
	if strings.TrimSpace(r.Identifier) == "" {
		return fmt.Errorf("identifier is required")
	}
	return nil
}

// Payload is style-independent structured data consumed by the render stage.
type Payload struct {
	Data   []byte `json:"data"`
	Format string `json:"format"`
}
