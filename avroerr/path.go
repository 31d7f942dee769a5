package avroerr

import (
	"strconv"
	"strings"
)

// PathRef builds JSON Pointer paths in a chain-safe way.
type PathRef struct {
	parts []string
}

// Root returns the empty path ("/").
func Root() PathRef { return PathRef{} }

// Field appends an object key segment.
func (p PathRef) Field(name string) PathRef {
	return PathRef{parts: append(append([]string{}, p.parts...), escape(name))}
}

// Index appends an array index segment.
func (p PathRef) Index(i int) PathRef {
	return PathRef{parts: append(append([]string{}, p.parts...), strconv.Itoa(i))}
}

// Pointer renders the path.
func (p PathRef) Pointer() string {
	if len(p.parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(p.parts, "/")
}

// Schemaf creates a schema issue at this path.
func (p PathRef) Schemaf(code, format string, args ...any) Issue {
	return Schemaf(p.Pointer(), code, format, args...)
}

// FieldPointer renders a single-segment pointer for an object key.
func FieldPointer(name string) string { return "/" + escape(name) }

// IndexPointer renders a single-segment pointer for an array index.
func IndexPointer(i int) string { return "/" + strconv.Itoa(i) }

// escape '~' -> '~0', '/' -> '~1' per RFC6901
func escape(s string) string {
	if !strings.ContainsAny(s, "~/") {
		return s
	}
	return strings.ReplaceAll(strings.ReplaceAll(s, "~", "~0"), "/", "~1")
}
