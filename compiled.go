package avrogen

import (
	"fmt"

	"github.com/reoring/avrogen/internal/gen"
	"github.com/reoring/avrogen/internal/ir"
	"github.com/reoring/avrogen/wire"
)

// Union is an explicitly tagged union value: the zero-based branch index and
// the branch payload.
type Union = gen.Union

// MapEntry is one key/value pair of an ordered map value.
type MapEntry = gen.MapEntry

// MapEntries is a map value encoded in slice order.
type MapEntries = gen.MapEntries

// Compiled is the routine pair generated for one schema. It is immutable once
// published and safe for concurrent use; each call owns only the value and
// the writer or reader passed to it.
type Compiled struct {
	ID ID
	// Fingerprint is the CRC-64-AVRO fingerprint of Canonical.
	Fingerprint uint64
	// Canonical is the Parsing Canonical Form of the schema.
	Canonical string

	schema  *ir.Schema
	program *gen.Program
}

// Serialize appends the encoding of v to w. On failure w is restored to its
// length before the call, so no partial encoding is left behind.
func (c *Compiled) Serialize(v any, w *wire.Writer) error {
	start := w.Len()
	if err := c.program.Encode(w, v); err != nil {
		w.Truncate(start)
		return err
	}
	return nil
}

// Deserialize reads exactly one value from r.
func (c *Compiled) Deserialize(r *wire.Reader) (any, error) {
	return c.program.Decode(r)
}

// Skip consumes one encoded value from r without building it.
func (c *Compiled) Skip(r *wire.Reader) error {
	return c.program.Skip(r)
}

// FingerprintHex renders the fingerprint as 16 hex digits.
func (c *Compiled) FingerprintHex() string { return fingerprintHex(c.Fingerprint) }

func fingerprintHex(fp uint64) string { return fmt.Sprintf("%016x", fp) }

// Types lists the full names of the named types the schema uses, in
// generation order.
func (c *Compiled) Types() []string { return c.program.Types() }

// Resolver decodes data written with an older or newer writer schema into
// values shaped by a compiled reader schema.
type Resolver struct {
	Reader            ID
	WriterFingerprint uint64

	inner *gen.Resolver
}

// Deserialize reads one writer-encoded value and returns it in reader shape.
func (rs *Resolver) Deserialize(r *wire.Reader) (any, error) {
	return rs.inner.Decode(r)
}
