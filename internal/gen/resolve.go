package gen

import (
	"slices"
	"strings"

	"github.com/reoring/avrogen/avroerr"
	"github.com/reoring/avrogen/internal/ir"
	"github.com/reoring/avrogen/wire"
)

// Resolver decodes data written with one schema into values shaped by
// another, following the Avro schema resolution rules.
type Resolver struct {
	writer *ir.Node
	reader *ir.Node
	decode decodeFn
}

// Decode reads one writer-encoded value and returns it in reader shape.
func (rs *Resolver) Decode(r *wire.Reader) (any, error) { return rs.decode(r) }

// Writer returns the schema the data was written with.
func (rs *Resolver) Writer() *ir.Node { return rs.writer }

// Reader returns the schema values are shaped by.
func (rs *Resolver) Reader() *ir.Node { return rs.reader }

type pairKey struct{ w, r *ir.Node }

type resolver struct {
	g    *generator
	memo map[pairKey]*fragment
}

// NewResolver builds a resolving decoder. It fails with a schema error when
// the writer schema can never be read as the reader schema.
func NewResolver(writer, reader *ir.Node, opts Options) (*Resolver, error) {
	rs := &resolver{
		g:    &generator{opts: opts, arena: make(map[*ir.Node]*fragment)},
		memo: make(map[pairKey]*fragment),
	}
	dec, err := rs.resolve(writer, reader, avroerr.Root())
	if err != nil {
		return nil, err
	}
	return &Resolver{writer: writer, reader: reader, decode: dec}, nil
}

func incompatible(path avroerr.PathRef, w, r *ir.Node) error {
	return path.Schemaf(avroerr.CodeIncompatible, "writer type %s cannot be read as %s", w.TypeName(), r.TypeName())
}

func (rs *resolver) resolve(w, r *ir.Node, path avroerr.PathRef) (decodeFn, error) {
	w, r = w.Resolve(), r.Resolve()
	if w.Kind == ir.Union {
		return rs.resolveWriterUnion(w, r, path)
	}
	if r.Kind == ir.Union {
		return rs.resolveReaderUnion(w, r, path)
	}
	if w.IsNamed() && r.IsNamed() {
		return rs.resolveNamed(w, r, path)
	}
	return rs.resolveBody(w, r, path)
}

// resolveWriterUnion resolves every writer branch on its own. A branch that
// cannot be read only fails when data actually selects it.
func (rs *resolver) resolveWriterUnion(w, r *ir.Node, path avroerr.PathRef) (decodeFn, error) {
	branches := make([]decodeFn, len(w.Branches))
	readable := 0
	var firstErr error
	for i, b := range w.Branches {
		dec, err := rs.resolve(b, r, path)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			name := b.TypeName()
			branches[i] = func(rd *wire.Reader) (any, error) {
				return nil, avroerr.Malformedf(rd.Offset(), avroerr.CodeIncompatible, "writer branch %s has no reader counterpart", name)
			}
			continue
		}
		readable++
		branches[i] = dec
	}
	if readable == 0 {
		return nil, firstErr
	}
	return func(rd *wire.Reader) (any, error) {
		i, err := rd.ReadUnionIndex(len(branches))
		if err != nil {
			return nil, err
		}
		return branches[i](rd)
	}, nil
}

// resolveReaderUnion picks the reader branch for a non-union writer type:
// the branch with the same type name, otherwise the first one the writer
// type resolves to.
func (rs *resolver) resolveReaderUnion(w, r *ir.Node, path avroerr.PathRef) (decodeFn, error) {
	order := make([]int, 0, len(r.Branches))
	for i, b := range r.Branches {
		if b.TypeName() == w.TypeName() {
			order = append(order, i)
		}
	}
	for i := range r.Branches {
		if !slices.Contains(order, i) {
			order = append(order, i)
		}
	}
	for _, i := range order {
		dec, err := rs.resolve(w, r.Branches[i], path)
		if err != nil {
			continue
		}
		if !rs.g.opts.TaggedUnions {
			return dec, nil
		}
		index := i
		return func(rd *wire.Reader) (any, error) {
			v, err := dec(rd)
			if err != nil {
				return nil, err
			}
			return Union{Index: index, Value: v}, nil
		}, nil
	}
	return nil, incompatible(path, w, r)
}

func (rs *resolver) resolveNamed(w, r *ir.Node, path avroerr.PathRef) (decodeFn, error) {
	key := pairKey{w, r}
	f, ok := rs.memo[key]
	if !ok {
		f = &fragment{node: r}
		rs.memo[key] = f
		dec, err := rs.resolveBody(w, r, path)
		if err != nil {
			delete(rs.memo, key)
			return nil, err
		}
		f.decode = dec
	}
	return func(rd *wire.Reader) (any, error) {
		if err := rd.Enter(); err != nil {
			return nil, err
		}
		v, err := f.decode(rd)
		rd.Leave()
		return v, err
	}, nil
}

func (rs *resolver) resolveBody(w, r *ir.Node, path avroerr.PathRef) (decodeFn, error) {
	if dec := promotion(w.Kind, r.Kind); dec != nil {
		return dec, nil
	}
	if w.Kind != r.Kind {
		return nil, incompatible(path, w, r)
	}
	switch w.Kind {
	case ir.Fixed:
		if !namesMatch(w, r) || w.Size != r.Size {
			return nil, incompatible(path, w, r)
		}
		return rs.readerDecoder(w, r), nil
	case ir.Enum:
		if !namesMatch(w, r) {
			return nil, incompatible(path, w, r)
		}
		return enumResolver(w, r), nil
	case ir.Array:
		item, err := rs.resolve(w.Items, r.Items, path)
		if err != nil {
			return nil, err
		}
		return arrayDecoder(item, minWidth(w.Items)), nil
	case ir.Map:
		value, err := rs.resolve(w.Values, r.Values, path)
		if err != nil {
			return nil, err
		}
		return mapDecoder(value, 1+minWidth(w.Values), rs.g.opts.OrderedMaps), nil
	case ir.Record:
		if !namesMatch(w, r) {
			return nil, incompatible(path, w, r)
		}
		return rs.recordResolver(w, r, path)
	}
	return rs.readerDecoder(w, r), nil
}

// readerDecoder decodes a writer value whose kind matches the reader's.
// The reader's logical interpretation applies unless the writer annotated the
// data with a different one.
func (rs *resolver) readerDecoder(w, r *ir.Node) decodeFn {
	if sameLogical(w, r) || w.Logical == ir.LogicalNone {
		return rs.g.bodyDecoder(r)
	}
	return rs.g.kindDecoder(r)
}

func sameLogical(w, r *ir.Node) bool {
	if w.Logical != r.Logical {
		return false
	}
	return w.Logical != ir.LogicalDecimal || w.Precision == r.Precision && w.Scale == r.Scale
}

// promotion returns the decoder for a permitted numeric or string/bytes
// widening, or nil.
func promotion(w, r ir.Kind) decodeFn {
	switch {
	case w == ir.Int && r == ir.Long:
		return func(rd *wire.Reader) (any, error) {
			v, err := rd.ReadInt()
			return int64(v), err
		}
	case w == ir.Int && r == ir.Float:
		return func(rd *wire.Reader) (any, error) {
			v, err := rd.ReadInt()
			return float32(v), err
		}
	case w == ir.Int && r == ir.Double:
		return func(rd *wire.Reader) (any, error) {
			v, err := rd.ReadInt()
			return float64(v), err
		}
	case w == ir.Long && r == ir.Float:
		return func(rd *wire.Reader) (any, error) {
			v, err := rd.ReadLong()
			return float32(v), err
		}
	case w == ir.Long && r == ir.Double:
		return func(rd *wire.Reader) (any, error) {
			v, err := rd.ReadLong()
			return float64(v), err
		}
	case w == ir.Float && r == ir.Double:
		return func(rd *wire.Reader) (any, error) {
			v, err := rd.ReadFloat()
			return float64(v), err
		}
	case w == ir.String && r == ir.Bytes:
		return func(rd *wire.Reader) (any, error) { return rd.ReadBytes() }
	case w == ir.Bytes && r == ir.String:
		return func(rd *wire.Reader) (any, error) { return rd.ReadString() }
	}
	return nil
}

func enumResolver(w, r *ir.Node) decodeFn {
	symbols := make([]string, len(w.Symbols))
	known := make([]bool, len(w.Symbols))
	for i, s := range w.Symbols {
		switch {
		case r.SymbolIndex(s) >= 0:
			symbols[i], known[i] = s, true
		case r.HasEnumDefault:
			symbols[i], known[i] = r.EnumDefault, true
		}
	}
	return func(rd *wire.Reader) (any, error) {
		start := rd.Offset()
		i, err := rd.ReadEnum(len(symbols))
		if err != nil {
			return nil, err
		}
		if !known[i] {
			return nil, avroerr.Malformedf(start, avroerr.CodeUnknownEnumValue, "symbol %q is unknown to %s", w.Symbols[i], r.Name)
		}
		return symbols[i], nil
	}
}

type resolvedField struct {
	name   string
	decode decodeFn
	skip   skipFn
}

type defaultField struct {
	name  string
	value any
}

func (rs *resolver) recordResolver(w, r *ir.Node, path avroerr.PathRef) (decodeFn, error) {
	steps := make([]resolvedField, len(w.Fields))
	matched := make(map[*ir.Field]bool, len(r.Fields))
	for i, wf := range w.Fields {
		rf := readerField(r, wf.Name)
		if rf == nil {
			steps[i] = resolvedField{skip: rs.g.skipper(wf.Type)}
			continue
		}
		matched[rf] = true
		dec, err := rs.resolve(wf.Type, rf.Type, path.Field(rf.Name))
		if err != nil {
			return nil, err
		}
		steps[i] = resolvedField{name: rf.Name, decode: dec}
	}
	var defaults []defaultField
	for _, rf := range r.Fields {
		if matched[rf] {
			continue
		}
		if !rf.HasDefault {
			return nil, path.Field(rf.Name).Schemaf(avroerr.CodeIncompatible, "reader field %q is missing from the writer and has no default", rf.Name)
		}
		defaults = append(defaults, defaultField{name: rf.Name, value: rf.Default})
	}
	return func(rd *wire.Reader) (any, error) {
		out := make(map[string]any, len(r.Fields))
		for _, s := range steps {
			if s.decode == nil {
				if err := s.skip(rd); err != nil {
					return nil, err
				}
				continue
			}
			v, err := s.decode(rd)
			if err != nil {
				return nil, avroerr.WithPath(err, avroerr.FieldPointer(s.name))
			}
			out[s.name] = v
		}
		for _, d := range defaults {
			out[d.name] = cloneValue(d.value)
		}
		return out, nil
	}, nil
}

func readerField(r *ir.Node, name string) *ir.Field {
	if i := r.FieldIndex(name); i >= 0 {
		return r.Fields[i]
	}
	for _, f := range r.Fields {
		if slices.Contains(f.Aliases, name) {
			return f
		}
	}
	return nil
}

func namesMatch(w, r *ir.Node) bool {
	if w.Name == r.Name || unqualified(w.Name) == unqualified(r.Name) {
		return true
	}
	return slices.Contains(r.Aliases, w.Name)
}

func unqualified(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
