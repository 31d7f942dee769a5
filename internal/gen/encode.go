package gen

import (
	"math"

	"github.com/reoring/avrogen/avroerr"
	"github.com/reoring/avrogen/internal/ir"
	"github.com/reoring/avrogen/wire"
)

func mismatch(n *ir.Node, v any) error {
	return avroerr.Serializationf("/", avroerr.CodeInvalidType, "expected %s, got %T", n.TypeName(), v)
}

// encoder returns the routine for n. Named types route through the arena.
func (g *generator) encoder(n *ir.Node) encodeFn {
	n = n.Resolve()
	if n.IsNamed() {
		f := g.fragmentFor(n)
		return func(w *wire.Writer, v any) error {
			if err := w.Enter(); err != nil {
				return err
			}
			err := f.encode(w, v)
			w.Leave()
			return err
		}
	}
	return g.bodyEncoder(n)
}

func (g *generator) bodyEncoder(n *ir.Node) encodeFn {
	plain := g.kindEncoder(n)
	if n.Logical == ir.LogicalNone {
		return plain
	}
	return g.logicalEncoder(n, plain)
}

func (g *generator) kindEncoder(n *ir.Node) encodeFn {
	switch n.Kind {
	case ir.Null:
		return func(w *wire.Writer, v any) error {
			if v != nil {
				return mismatch(n, v)
			}
			return nil
		}
	case ir.Boolean:
		return func(w *wire.Writer, v any) error {
			b, ok := v.(bool)
			if !ok {
				return mismatch(n, v)
			}
			w.WriteBoolean(b)
			return nil
		}
	case ir.Int:
		return func(w *wire.Writer, v any) error {
			if i, ok := v.(int32); ok {
				w.WriteInt(i)
				return nil
			}
			i, ok := asInt64(v)
			if !ok {
				return mismatch(n, v)
			}
			if i < math.MinInt32 || i > math.MaxInt32 {
				return avroerr.Serializationf("/", avroerr.CodeOutOfRange, "%d overflows int", i)
			}
			w.WriteInt(int32(i))
			return nil
		}
	case ir.Long:
		return func(w *wire.Writer, v any) error {
			i, ok := asInt64(v)
			if !ok {
				if _, unsigned := v.(uint64); unsigned {
					return avroerr.Serializationf("/", avroerr.CodeOutOfRange, "%v overflows long", v)
				}
				return mismatch(n, v)
			}
			w.WriteLong(i)
			return nil
		}
	case ir.Float:
		return func(w *wire.Writer, v any) error {
			if f, ok := v.(float32); ok {
				w.WriteFloat(f)
				return nil
			}
			f, ok := asFloat64(v)
			if !ok {
				return mismatch(n, v)
			}
			w.WriteFloat(float32(f))
			return nil
		}
	case ir.Double:
		return func(w *wire.Writer, v any) error {
			f, ok := asFloat64(v)
			if !ok {
				return mismatch(n, v)
			}
			w.WriteDouble(f)
			return nil
		}
	case ir.Bytes:
		return func(w *wire.Writer, v any) error {
			b, ok := asBytes(v)
			if !ok {
				return mismatch(n, v)
			}
			w.WriteBytes(b)
			return nil
		}
	case ir.String:
		return func(w *wire.Writer, v any) error {
			switch s := v.(type) {
			case string:
				return w.WriteString(s)
			case []byte:
				return w.WriteString(string(s))
			}
			return mismatch(n, v)
		}
	case ir.Fixed:
		size := n.Size
		return func(w *wire.Writer, v any) error {
			b, ok := v.([]byte)
			if !ok {
				return mismatch(n, v)
			}
			return w.WriteFixed(b, size)
		}
	case ir.Enum:
		index := make(map[string]int, len(n.Symbols))
		for i, s := range n.Symbols {
			index[s] = i
		}
		return func(w *wire.Writer, v any) error {
			s, ok := v.(string)
			if !ok {
				return mismatch(n, v)
			}
			i, ok := index[s]
			if !ok {
				return avroerr.Serializationf("/", avroerr.CodeInvalidSymbol, "%q is not a symbol of %s", s, n.Name)
			}
			w.WriteEnum(i)
			return nil
		}
	case ir.Array:
		item := g.encoder(n.Items)
		return func(w *wire.Writer, v any) error {
			count, at, ok := asList(v)
			if !ok {
				return mismatch(n, v)
			}
			if count > 0 {
				w.WriteBlockCount(count)
				for i := 0; i < count; i++ {
					if err := item(w, at(i)); err != nil {
						return avroerr.WithPath(err, avroerr.IndexPointer(i))
					}
				}
			}
			w.WriteBlockCount(0)
			return nil
		}
	case ir.Map:
		value := g.encoder(n.Values)
		return func(w *wire.Writer, v any) error {
			entries, ok := asEntries(v)
			if !ok {
				return mismatch(n, v)
			}
			if len(entries) > 0 {
				w.WriteBlockCount(len(entries))
				for _, e := range entries {
					if err := w.WriteString(e.Key); err != nil {
						return avroerr.WithPath(err, avroerr.FieldPointer(e.Key))
					}
					if err := value(w, e.Value); err != nil {
						return avroerr.WithPath(err, avroerr.FieldPointer(e.Key))
					}
				}
			}
			w.WriteBlockCount(0)
			return nil
		}
	case ir.Union:
		return g.unionEncoder(n)
	case ir.Record:
		return g.recordEncoder(n)
	}
	return func(w *wire.Writer, v any) error { return mismatch(n, v) }
}

type fieldEncoder struct {
	name       string
	pointer    string
	encode     encodeFn
	def        any
	hasDefault bool
}

func (g *generator) recordEncoder(n *ir.Node) encodeFn {
	fields := make([]fieldEncoder, len(n.Fields))
	known := make(map[string]bool, len(n.Fields))
	for i, f := range n.Fields {
		fields[i] = fieldEncoder{
			name:       f.Name,
			pointer:    avroerr.FieldPointer(f.Name),
			encode:     g.encoder(f.Type),
			def:        f.Default,
			hasDefault: f.HasDefault,
		}
		known[f.Name] = true
	}
	return func(w *wire.Writer, v any) error {
		m, ok := asFields(v)
		if !ok {
			return mismatch(n, v)
		}
		if unknown := unknownKey(m, known); unknown != "" {
			return avroerr.Serializationf(avroerr.FieldPointer(unknown), avroerr.CodeUnknownField, "%s has no field %q", n.Name, unknown)
		}
		for i := range fields {
			f := &fields[i]
			x, present := m[f.name]
			if !present {
				if !f.hasDefault {
					return avroerr.Serializationf(f.pointer, avroerr.CodeMissingField, "field %q of %s is required", f.name, n.Name)
				}
				x = f.def
			}
			if err := f.encode(w, x); err != nil {
				return avroerr.WithPath(err, f.pointer)
			}
		}
		return nil
	}
}

// unknownKey returns the smallest key of m that is not a field, or "".
func unknownKey(m map[string]any, known map[string]bool) string {
	var out string
	for k := range m {
		if !known[k] && (out == "" || k < out) {
			out = k
		}
	}
	return out
}

func (g *generator) logicalEncoder(n *ir.Node, plain encodeFn) encodeFn {
	switch n.Logical {
	case ir.LogicalDecimal:
		precision, scale, size := n.Precision, n.Scale, n.Size
		if n.Kind == ir.Fixed {
			return func(w *wire.Writer, v any) error {
				if b, ok := v.([]byte); ok {
					return plain(w, b)
				}
				d, ok := asDecimal(v)
				if !ok {
					return mismatch(n, v)
				}
				return w.WriteDecimalFixed(d, precision, scale, size)
			}
		}
		return func(w *wire.Writer, v any) error {
			if b, ok := v.([]byte); ok {
				return plain(w, b)
			}
			d, ok := asDecimal(v)
			if !ok {
				return mismatch(n, v)
			}
			return w.WriteDecimal(d, precision, scale)
		}
	case ir.LogicalDate:
		return func(w *wire.Writer, v any) error {
			if t, ok := asTime(v); ok {
				return w.WriteDate(t)
			}
			return plain(w, v)
		}
	case ir.LogicalTimeMillis:
		return func(w *wire.Writer, v any) error {
			if d, ok := asDuration(v); ok {
				return w.WriteTimeMillis(d)
			}
			return plain(w, v)
		}
	case ir.LogicalTimeMicros:
		return func(w *wire.Writer, v any) error {
			if d, ok := asDuration(v); ok {
				return w.WriteTimeMicros(d)
			}
			return plain(w, v)
		}
	case ir.LogicalTimestampMillis:
		return func(w *wire.Writer, v any) error {
			if t, ok := asTime(v); ok {
				w.WriteTimestampMillis(t)
				return nil
			}
			return plain(w, v)
		}
	case ir.LogicalTimestampMicros:
		return func(w *wire.Writer, v any) error {
			if t, ok := asTime(v); ok {
				w.WriteTimestampMicros(t)
				return nil
			}
			return plain(w, v)
		}
	case ir.LogicalUUID:
		return func(w *wire.Writer, v any) error {
			u, ok := asUUID(v)
			if !ok {
				if s, isString := v.(string); isString {
					return avroerr.Serializationf("/", avroerr.CodeInvalidType, "%q is not a uuid", s)
				}
				return mismatch(n, v)
			}
			w.WriteUUID(u)
			return nil
		}
	}
	return plain
}
