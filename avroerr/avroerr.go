// Package avroerr defines the error kinds shared by the schema builder, the
// code generator, the wire primitives and the registry.
//
// Every failure surfaced by avrogen is either one of the sentinel kinds below
// or an Issue/Issues value whose Is method matches one of them, so callers can
// always branch with errors.Is:
//
//	if errors.Is(err, avroerr.ErrTruncatedInput) { ... }
package avroerr

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Error kinds.
var (
	// ErrSchema reports a malformed or unresolvable schema document. It is
	// raised during compilation only.
	ErrSchema = errors.New("avrogen: schema error")
	// ErrSerialization reports a value that does not match the schema shape.
	ErrSerialization = errors.New("avrogen: serialization error")
	// ErrMalformedInput reports decoded bytes violating a structural invariant.
	ErrMalformedInput = errors.New("avrogen: malformed input")
	// ErrTruncatedInput reports a source that ended mid-value.
	ErrTruncatedInput = errors.New("avrogen: truncated input")
	// ErrOverflow reports a varint wider than its target integer.
	ErrOverflow = errors.New("avrogen: varint overflow")
	// ErrUnknownSchema reports a lookup of an identifier with no compiled routines.
	ErrUnknownSchema = errors.New("avrogen: unknown schema")
)

// Issue codes (exported consts for IDE completion and type safety by convention)
const (
	// schema
	CodeInvalidType     = "invalid_type"
	CodeUnknownType     = "unknown_type"
	CodeMissingKey      = "missing_key"
	CodeInvalidName     = "invalid_name"
	CodeDuplicateName   = "duplicate_name"
	CodeUnresolvedName  = "unresolved_name"
	CodeInvalidUnion    = "invalid_union"
	CodeInvalidLogical  = "invalid_logical"
	CodeInvalidDefault  = "invalid_default"
	CodeDuplicateSymbol = "duplicate_symbol"
	CodeDuplicateField  = "duplicate_field"
	CodeCycle           = "cycle"
	CodeIncompatible    = "incompatible"
	CodeDuplicateKey    = "duplicate_key"
	// serialization
	CodeUnionAmbiguous = "union_ambiguous"
	CodeNoUnionBranch  = "no_union_branch"
	CodeMissingField   = "missing_field"
	CodeUnknownField   = "unknown_field"
	CodeOutOfRange     = "out_of_range"
	CodeInvalidUTF8    = "invalid_utf8"
	CodeInvalidSize    = "invalid_size"
	CodeInvalidSymbol  = "invalid_symbol"
	CodePrecisionLoss  = "precision_loss"
	// decoding
	CodeTruncated        = "truncated"
	CodeOverflow         = "overflow"
	CodeInvalidBool      = "invalid_bool"
	CodeNegativeLength   = "negative_length"
	CodeLengthLimit      = "length_limit"
	CodeItemLimit        = "item_limit"
	CodeDepthLimit       = "depth_limit"
	CodeIndexOutOfRange  = "index_out_of_range"
	CodeInvalidFormat    = "invalid_format"
	CodeTrailingBytes    = "trailing_bytes"
	CodeUnknownEnumValue = "unknown_enum_value"
)

// Issue is a single diagnosable failure.
type Issue struct {
	Kind    error  // One of the Err* sentinels.
	Path    string // JSON Pointer into the schema document or the value ("/" for the root).
	Code    string // One of the codes listed above.
	Message string
	Offset  int64 // Byte offset in the input source (-1 when unknown).
	Cause   error // Optional: underlying error.
}

func (it Issue) Error() string {
	b := &strings.Builder{}
	if it.Kind != nil {
		b.WriteString(it.Kind.Error())
		b.WriteString(": ")
	}
	b.WriteString(it.Code)
	if it.Path != "" {
		fmt.Fprintf(b, " at %s", it.Path)
	}
	if it.Offset >= 0 && (it.Kind == ErrMalformedInput || it.Kind == ErrTruncatedInput || it.Kind == ErrOverflow) {
		fmt.Fprintf(b, " (offset %d)", it.Offset)
	}
	if it.Message != "" {
		b.WriteString(": ")
		b.WriteString(it.Message)
	}
	return b.String()
}

// Is matches the issue kind.
func (it Issue) Is(target error) bool { return it.Kind != nil && it.Kind == target }

// Unwrap returns the underlying cause.
func (it Issue) Unwrap() error { return it.Cause }

// At returns a copy of the issue with its path replaced.
func (it Issue) At(path string) Issue {
	it.Path = path
	return it
}

// Issues is a collection of failures that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := n
	if lim > maxShown {
		lim = maxShown
	}
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		it := iss[i]
		fmt.Fprintf(b, "%s at %s", it.Code, it.Path)
		if it.Message != "" {
			fmt.Fprintf(b, " (%s)", it.Message)
		}
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// Is reports whether any issue matches target.
func (iss Issues) Is(target error) bool {
	for _, it := range iss {
		if it.Is(target) {
			return true
		}
	}
	return false
}

// AppendIssues appends issues to the destination, initializing the slice when
// needed.
func AppendIssues(dst Issues, more ...Issue) Issues {
	if dst == nil {
		dst = Issues{}
	}
	dst = append(dst, more...)
	return dst
}

// AsIssues extracts Issues from an error. A lone Issue is returned as a
// one-element slice.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	var it Issue
	if errors.As(err, &it) {
		return Issues{it}, true
	}
	return nil, false
}

// Schemaf creates a schema issue.
func Schemaf(path, code, format string, args ...any) Issue {
	return Issue{Kind: ErrSchema, Path: path, Code: code, Message: fmt.Sprintf(format, args...), Offset: -1}
}

// Serializationf creates a serialization issue.
func Serializationf(path, code, format string, args ...any) Issue {
	return Issue{Kind: ErrSerialization, Path: path, Code: code, Message: fmt.Sprintf(format, args...), Offset: -1}
}

// Malformedf creates a malformed-input issue at a byte offset.
func Malformedf(offset int64, code, format string, args ...any) Issue {
	return Issue{Kind: ErrMalformedInput, Code: code, Message: fmt.Sprintf(format, args...), Offset: offset}
}

// Truncated creates a truncated-input issue at a byte offset.
func Truncated(offset int64, cause error) Issue {
	return Issue{Kind: ErrTruncatedInput, Code: CodeTruncated, Message: "source ended before the value was complete", Offset: offset, Cause: cause}
}

// Overflow creates an overflow issue for a varint of the given bit width.
func Overflow(offset int64, width int) Issue {
	return Issue{Kind: ErrOverflow, Code: CodeOverflow, Message: fmt.Sprintf("varint exceeds %d bits", width), Offset: offset}
}

// WithPath prefixes the path of an Issue (or every entry of Issues) found in
// err. Errors that carry no issue are returned unchanged.
func WithPath(err error, path string) error {
	if err == nil || path == "" || path == "/" {
		return err
	}
	switch t := err.(type) {
	case Issue:
		t.Path = joinPointer(path, t.Path)
		return t
	case Issues:
		out := make(Issues, len(t))
		for i, it := range t {
			it.Path = joinPointer(path, it.Path)
			out[i] = it
		}
		return out
	}
	return err
}

func joinPointer(prefix, p string) string {
	if p == "" || p == "/" {
		return prefix
	}
	return strings.TrimSuffix(prefix, "/") + p
}
