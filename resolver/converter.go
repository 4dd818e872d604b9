package resolver

import "context"

// Conversion is the result of a local notation conversion. It may own a
// native/toolkit handle, so Release is mandatory on every path, success or
// failure; the resolver copies the data out before releasing.
type Conversion interface {
	// Data returns the converted payload bytes.
	Data() []byte

	// Format names the interchange format of the data.
	Format() string

	// Release frees any toolkit-owned resources behind the conversion.
	// Safe to call exactly once; the resolver guarantees it is called.
	Release()
}

// Converter turns a compact linear notation into a structured interchange
// payload. The dependency handle registered for the converter dependency
// must implement this interface.
type Converter interface {
	Convert(ctx context.Context, notation string) (Conversion, error)
}
