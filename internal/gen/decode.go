package gen

import (
	"github.com/reoring/avrogen/avroerr"
	"github.com/reoring/avrogen/internal/ir"
	"github.com/reoring/avrogen/wire"
)

// _maxPrealloc caps the capacity reserved from an untrusted block count.
const _maxPrealloc = 1024

func (g *generator) decoder(n *ir.Node) decodeFn {
	n = n.Resolve()
	if n.IsNamed() {
		f := g.fragmentFor(n)
		return func(r *wire.Reader) (any, error) {
			if err := r.Enter(); err != nil {
				return nil, err
			}
			v, err := f.decode(r)
			r.Leave()
			return v, err
		}
	}
	return g.bodyDecoder(n)
}

func (g *generator) bodyDecoder(n *ir.Node) decodeFn {
	if d := logicalDecoder(n); d != nil {
		return d
	}
	return g.kindDecoder(n)
}

func (g *generator) kindDecoder(n *ir.Node) decodeFn {
	switch n.Kind {
	case ir.Null:
		return func(r *wire.Reader) (any, error) { return nil, nil }
	case ir.Boolean:
		return func(r *wire.Reader) (any, error) { return r.ReadBoolean() }
	case ir.Int:
		return func(r *wire.Reader) (any, error) { return r.ReadInt() }
	case ir.Long:
		return func(r *wire.Reader) (any, error) { return r.ReadLong() }
	case ir.Float:
		return func(r *wire.Reader) (any, error) { return r.ReadFloat() }
	case ir.Double:
		return func(r *wire.Reader) (any, error) { return r.ReadDouble() }
	case ir.Bytes:
		return func(r *wire.Reader) (any, error) { return r.ReadBytes() }
	case ir.String:
		return func(r *wire.Reader) (any, error) { return r.ReadString() }
	case ir.Fixed:
		size := n.Size
		return func(r *wire.Reader) (any, error) { return r.ReadFixed(size) }
	case ir.Enum:
		symbols := n.Symbols
		return func(r *wire.Reader) (any, error) {
			i, err := r.ReadEnum(len(symbols))
			if err != nil {
				return nil, err
			}
			return symbols[i], nil
		}
	case ir.Array:
		return arrayDecoder(g.decoder(n.Items), minWidth(n.Items))
	case ir.Map:
		return mapDecoder(g.decoder(n.Values), 1+minWidth(n.Values), g.opts.OrderedMaps)
	case ir.Union:
		branches := make([]decodeFn, len(n.Branches))
		for i, b := range n.Branches {
			branches[i] = g.decoder(b)
		}
		return unionDecoder(branches, g.opts.TaggedUnions)
	case ir.Record:
		names := make([]string, len(n.Fields))
		fields := make([]decodeFn, len(n.Fields))
		for i, f := range n.Fields {
			names[i] = f.Name
			fields[i] = g.decoder(f.Type)
		}
		return func(r *wire.Reader) (any, error) {
			out := make(map[string]any, len(fields))
			for i, dec := range fields {
				v, err := dec(r)
				if err != nil {
					return nil, avroerr.WithPath(err, avroerr.FieldPointer(names[i]))
				}
				out[names[i]] = v
			}
			return out, nil
		}
	}
	return func(r *wire.Reader) (any, error) {
		return nil, avroerr.Malformedf(r.Offset(), avroerr.CodeInvalidType, "cannot decode %s", n.Kind)
	}
}

// arrayDecoder decodes a blocked array whose items each occupy at least
// width bytes.
func arrayDecoder(item decodeFn, width int64) decodeFn {
	return func(r *wire.Reader) (any, error) {
		out := make([]any, 0)
		for {
			count, _, err := r.ReadBlockHeader()
			if err == nil {
				err = r.CheckItems(int64(len(out)), count, width)
			}
			if err != nil {
				return nil, avroerr.WithPath(err, avroerr.IndexPointer(len(out)))
			}
			if count == 0 {
				return out, nil
			}
			if len(out) == 0 {
				out = make([]any, 0, min(count, _maxPrealloc))
			}
			for ; count > 0; count-- {
				v, err := item(r)
				if err != nil {
					return nil, avroerr.WithPath(err, avroerr.IndexPointer(len(out)))
				}
				out = append(out, v)
			}
		}
	}
}

// mapDecoder decodes a blocked map whose entries each occupy at least width
// bytes. Ordered maps decode to MapEntries in wire order, so re-encoding
// reproduces the input.
func mapDecoder(value decodeFn, width int64, ordered bool) decodeFn {
	return func(r *wire.Reader) (any, error) {
		var (
			entries MapEntries
			out     map[string]any
			seen    int64
		)
		if !ordered {
			out = make(map[string]any)
		}
		for {
			count, _, err := r.ReadBlockHeader()
			if err == nil {
				err = r.CheckItems(seen, count, width)
			}
			if err != nil {
				return nil, err
			}
			if count == 0 {
				if ordered {
					return entries, nil
				}
				return out, nil
			}
			seen += count
			for ; count > 0; count-- {
				k, err := r.ReadString()
				if err != nil {
					return nil, err
				}
				v, err := value(r)
				if err != nil {
					return nil, avroerr.WithPath(err, avroerr.FieldPointer(k))
				}
				if ordered {
					entries = append(entries, MapEntry{Key: k, Value: v})
				} else {
					out[k] = v
				}
			}
		}
	}
}

func unionDecoder(branches []decodeFn, tagged bool) decodeFn {
	return func(r *wire.Reader) (any, error) {
		i, err := r.ReadUnionIndex(len(branches))
		if err != nil {
			return nil, err
		}
		v, err := branches[i](r)
		if err != nil {
			return nil, err
		}
		if tagged {
			return Union{Index: i, Value: v}, nil
		}
		return v, nil
	}
}

func logicalDecoder(n *ir.Node) decodeFn {
	switch n.Logical {
	case ir.LogicalDecimal:
		scale := n.Scale
		if n.Kind == ir.Fixed {
			size := n.Size
			return func(r *wire.Reader) (any, error) { return r.ReadDecimalFixed(size, scale) }
		}
		return func(r *wire.Reader) (any, error) { return r.ReadDecimal(scale) }
	case ir.LogicalDate:
		return func(r *wire.Reader) (any, error) { return r.ReadDate() }
	case ir.LogicalTimeMillis:
		return func(r *wire.Reader) (any, error) { return r.ReadTimeMillis() }
	case ir.LogicalTimeMicros:
		return func(r *wire.Reader) (any, error) { return r.ReadTimeMicros() }
	case ir.LogicalTimestampMillis:
		return func(r *wire.Reader) (any, error) { return r.ReadTimestampMillis() }
	case ir.LogicalTimestampMicros:
		return func(r *wire.Reader) (any, error) { return r.ReadTimestampMicros() }
	case ir.LogicalUUID:
		return func(r *wire.Reader) (any, error) { return r.ReadUUID() }
	}
	return nil
}

func (g *generator) skipper(n *ir.Node) skipFn {
	n = n.Resolve()
	if n.IsNamed() {
		f := g.fragmentFor(n)
		return func(r *wire.Reader) error {
			if err := r.Enter(); err != nil {
				return err
			}
			err := f.skip(r)
			r.Leave()
			return err
		}
	}
	return g.bodySkipper(n)
}

// bodySkipper consumes a value without building it. Logical annotations do
// not change the wire shape, so only the kind matters.
func (g *generator) bodySkipper(n *ir.Node) skipFn {
	switch n.Kind {
	case ir.Null:
		return func(*wire.Reader) error { return nil }
	case ir.Boolean:
		return func(r *wire.Reader) error { _, err := r.ReadBoolean(); return err }
	case ir.Int:
		return func(r *wire.Reader) error { _, err := r.ReadInt(); return err }
	case ir.Long, ir.Enum:
		return (*wire.Reader).SkipLong
	case ir.Float:
		return func(r *wire.Reader) error { return r.Skip(4) }
	case ir.Double:
		return func(r *wire.Reader) error { return r.Skip(8) }
	case ir.Bytes, ir.String:
		return (*wire.Reader).SkipBytes
	case ir.Fixed:
		size := int64(n.Size)
		return func(r *wire.Reader) error { return r.Skip(size) }
	case ir.Array:
		return blockSkipper(g.skipper(n.Items), minWidth(n.Items))
	case ir.Map:
		value := g.skipper(n.Values)
		return blockSkipper(func(r *wire.Reader) error {
			if err := r.SkipBytes(); err != nil {
				return err
			}
			return value(r)
		}, 1+minWidth(n.Values))
	case ir.Union:
		branches := make([]skipFn, len(n.Branches))
		for i, b := range n.Branches {
			branches[i] = g.skipper(b)
		}
		return func(r *wire.Reader) error {
			i, err := r.ReadUnionIndex(len(branches))
			if err != nil {
				return err
			}
			return branches[i](r)
		}
	case ir.Record:
		fields := make([]skipFn, len(n.Fields))
		for i, f := range n.Fields {
			fields[i] = g.skipper(f.Type)
		}
		return func(r *wire.Reader) error {
			for _, skip := range fields {
				if err := skip(r); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return func(r *wire.Reader) error {
		return avroerr.Malformedf(r.Offset(), avroerr.CodeInvalidType, "cannot skip %s", n.Kind)
	}
}

// blockSkipper skips a blocked sequence, jumping over whole blocks whose
// byte size is known.
func blockSkipper(item skipFn, width int64) skipFn {
	return func(r *wire.Reader) error {
		var seen int64
		for {
			count, size, err := r.ReadBlockHeader()
			if err != nil {
				return err
			}
			if size < 0 {
				if err := r.CheckItems(seen, count, width); err != nil {
					return err
				}
				seen += count
			}
			if count == 0 {
				return nil
			}
			if size >= 0 {
				if err := r.Skip(size); err != nil {
					return err
				}
				continue
			}
			for ; count > 0; count-- {
				if err := item(r); err != nil {
					return err
				}
			}
		}
	}
}

// minWidth is the fewest bytes any value of n occupies on the wire. Zero
// means a block count alone cannot be checked against the input size.
func minWidth(n *ir.Node) int64 {
	return nodeWidth(n, make(map[*ir.Node]bool))
}

func nodeWidth(n *ir.Node, visiting map[*ir.Node]bool) int64 {
	n = n.Resolve()
	switch n.Kind {
	case ir.Null:
		return 0
	case ir.Fixed:
		return int64(n.Size)
	case ir.Float:
		return 4
	case ir.Double:
		return 8
	case ir.Record:
		if visiting[n] {
			return 0
		}
		visiting[n] = true
		var w int64
		for _, f := range n.Fields {
			w += nodeWidth(f.Type, visiting)
		}
		delete(visiting, n)
		return w
	}
	return 1
}
