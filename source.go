package avrogen

import "context"

// Document is one schema found by a Source.
type Document struct {
	ID ID
	// Schema is the raw schema tree (maps, lists and scalars).
	Schema any
	// Location describes where the document came from, for diagnostics.
	Location string
	// Examples are optional sample values conforming to the schema.
	Examples []any
	// Err records a failure to read or decode the document. The registry
	// records it as a schema error for ID.
	Err error
}

// Source enumerates schema documents. The directory layout
// root/namespace/name/version/ is implemented by source/dir; any other
// catalog can plug in by implementing this interface.
type Source interface {
	Documents(ctx context.Context) ([]Document, error)
}

// Documents is a static Source.
type Documents []Document

// Documents returns the receiver.
func (d Documents) Documents(context.Context) ([]Document, error) { return d, nil }
