// Package gen turns a resolved schema graph into specialized encode, decode
// and skip routines. Generation happens once per schema; the result is a
// graph of closures that call the wire primitives directly, with no per-call
// inspection of the schema.
package gen

import (
	"github.com/reoring/avrogen/internal/ir"
	"github.com/reoring/avrogen/wire"
)

type (
	encodeFn func(w *wire.Writer, v any) error
	decodeFn func(r *wire.Reader) (any, error)
	skipFn   func(r *wire.Reader) error
)

// Options controls generation.
type Options struct {
	// TaggedUnions makes union decoders return Union values carrying the
	// branch index instead of the bare payload.
	TaggedUnions bool
	// OrderedMaps makes map decoders return MapEntries in wire order instead
	// of Go maps.
	OrderedMaps bool
}

// Program is the generated routine set for one schema. It is immutable and
// safe for concurrent use.
type Program struct {
	root   *ir.Node
	types  []string
	encode encodeFn
	decode decodeFn
	skip   skipFn
}

// Encode appends the encoding of v to w.
func (p *Program) Encode(w *wire.Writer, v any) error { return p.encode(w, v) }

// Decode reads exactly one value from r.
func (p *Program) Decode(r *wire.Reader) (any, error) { return p.decode(r) }

// Skip consumes exactly one value from r without materializing it.
func (p *Program) Skip(r *wire.Reader) error { return p.skip(r) }

// Root returns the schema the program was generated from.
func (p *Program) Root() *ir.Node { return p.root }

// Types lists the full names of the named types the program generated
// fragments for, in generation order.
func (p *Program) Types() []string { return append([]string(nil), p.types...) }

// fragment holds the generated routines of one named type. Call sites bind
// to the fragment, not to its routines, so a type may call itself.
type fragment struct {
	node   *ir.Node
	encode encodeFn
	decode decodeFn
	skip   skipFn
}

type generator struct {
	opts  Options
	arena map[*ir.Node]*fragment
	order []*fragment
}

// Generate builds the routines for the schema rooted at root. Named types
// are first registered in an arena, then their bodies are generated exactly
// once each; references compile to calls into the arena.
func Generate(root *ir.Node, opts Options) *Program {
	g := &generator{opts: opts, arena: make(map[*ir.Node]*fragment)}
	g.register(root, make(map[*ir.Node]bool))
	for _, f := range g.order {
		f.encode = g.bodyEncoder(f.node)
		f.decode = g.bodyDecoder(f.node)
		f.skip = g.bodySkipper(f.node)
	}
	p := &Program{
		root:   root,
		encode: g.encoder(root),
		decode: g.decoder(root),
		skip:   g.skipper(root),
	}
	for _, f := range g.order {
		p.types = append(p.types, f.node.Name)
	}
	return p
}

// register walks the graph depth-first in declaration order and adds every
// reachable named type to the arena.
func (g *generator) register(n *ir.Node, seen map[*ir.Node]bool) {
	n = n.Resolve()
	if n == nil || seen[n] {
		return
	}
	seen[n] = true
	if n.IsNamed() {
		f := &fragment{node: n}
		g.arena[n] = f
		g.order = append(g.order, f)
	}
	switch n.Kind {
	case ir.Array:
		g.register(n.Items, seen)
	case ir.Map:
		g.register(n.Values, seen)
	case ir.Union:
		for _, b := range n.Branches {
			g.register(b, seen)
		}
	case ir.Record:
		for _, f := range n.Fields {
			g.register(f.Type, seen)
		}
	}
}

// fragmentFor returns the arena entry of a named node, registering it when a
// resolver reaches a type outside the original graph.
func (g *generator) fragmentFor(n *ir.Node) *fragment {
	if f, ok := g.arena[n]; ok {
		return f
	}
	f := &fragment{node: n}
	g.arena[n] = f
	g.order = append(g.order, f)
	f.encode = g.bodyEncoder(n)
	f.decode = g.bodyDecoder(n)
	f.skip = g.bodySkipper(n)
	return f
}
