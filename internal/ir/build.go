package ir

import (
	"math/big"
	"reflect"
	"regexp"
	"strings"

	"github.com/reoring/avrogen/avroerr"
)

// Options controls Build.
type Options struct {
	// External lists named types declared by other documents. A document may
	// reference them by full name when it does not declare that name itself.
	External []*Node
}

var _nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type pendingRef struct {
	ref  *Node
	name string
	ns   string
	path avroerr.PathRef
}

type pendingUnion struct {
	node *Node
	path avroerr.PathRef
}

type pendingDefault struct {
	field *Field
	path  avroerr.PathRef
}

type builder struct {
	external map[string]*Node
	byName   map[string]*Node
	types    []*Node
	refs     []pendingRef
	unions   []pendingUnion
	defaults []pendingDefault
	rawDef   map[*Field]any
	stack    map[uintptr]bool
	issues   avroerr.Issues
}

// Build normalizes a raw schema tree (maps, lists and scalars, as produced by
// a JSON or YAML decoder) into a resolved Schema. Named types are registered
// while the tree is walked and references are resolved afterwards, so a type
// may be referenced before its declaration and records may refer to
// themselves. Every problem found is reported; the error is avroerr.Issues.
func Build(raw any, opts Options) (*Schema, error) {
	b := &builder{
		external: make(map[string]*Node),
		byName:   make(map[string]*Node),
		rawDef:   make(map[*Field]any),
		stack:    make(map[uintptr]bool),
	}
	for _, n := range opts.External {
		if r := n.Resolve(); r != nil && r.IsNamed() {
			b.external[r.Name] = r
		}
	}
	root := b.node(raw, "", avroerr.Root())
	b.resolveRefs()
	b.checkUnions()
	if len(b.issues) == 0 {
		b.convertDefaults()
	}
	if len(b.issues) > 0 {
		return nil, b.issues
	}
	return &Schema{Root: root, Types: b.types, byName: b.byName}, nil
}

func (b *builder) fail(it avroerr.Issue) *Node {
	b.issues = avroerr.AppendIssues(b.issues, it)
	return &Node{Kind: Null}
}

func (b *builder) node(raw any, ns string, path avroerr.PathRef) *Node {
	switch t := raw.(type) {
	case string:
		if k, ok := primitiveKinds[t]; ok {
			return &Node{Kind: k}
		}
		return b.ref(t, ns, path)
	case []any:
		return b.union(t, ns, path)
	case map[string]any:
		return b.object(t, ns, path)
	case map[any]any:
		m, ok := stringKeys(t)
		if !ok {
			return b.fail(path.Schemaf(avroerr.CodeInvalidType, "object keys must be strings"))
		}
		return b.object(m, ns, path)
	case nil:
		return b.fail(path.Schemaf(avroerr.CodeInvalidType, "missing type"))
	default:
		return b.fail(path.Schemaf(avroerr.CodeInvalidType, "expected a type name, object or list, got %T", raw))
	}
}

func (b *builder) ref(name, ns string, path avroerr.PathRef) *Node {
	r := &Node{Kind: Ref}
	b.refs = append(b.refs, pendingRef{ref: r, name: name, ns: ns, path: path})
	return r
}

func (b *builder) union(raw []any, ns string, path avroerr.PathRef) *Node {
	if len(raw) > 0 {
		p := reflect.ValueOf(raw).Pointer()
		if b.stack[p] {
			return b.fail(path.Schemaf(avroerr.CodeCycle, "schema tree refers to itself"))
		}
		b.stack[p] = true
		defer delete(b.stack, p)
	}
	n := &Node{Kind: Union, Branches: make([]*Node, len(raw))}
	for i, br := range raw {
		n.Branches[i] = b.node(br, ns, path.Index(i))
	}
	b.unions = append(b.unions, pendingUnion{node: n, path: path})
	return n
}

func (b *builder) object(m map[string]any, ns string, path avroerr.PathRef) *Node {
	p := reflect.ValueOf(m).Pointer()
	if b.stack[p] {
		return b.fail(path.Schemaf(avroerr.CodeCycle, "schema tree refers to itself"))
	}
	b.stack[p] = true
	defer delete(b.stack, p)

	rawType, ok := m["type"]
	if !ok {
		return b.fail(path.Schemaf(avroerr.CodeMissingKey, `missing "type"`))
	}
	typ, ok := rawType.(string)
	if !ok {
		// {"type": {...}} and {"type": [...]} wrap a nested schema.
		return b.node(rawType, ns, path.Field("type"))
	}
	if k, ok := primitiveKinds[typ]; ok {
		n := &Node{Kind: k}
		b.logical(n, m, path)
		return n
	}
	switch typ {
	case "record", "error":
		return b.named(Record, m, ns, path)
	case "enum":
		return b.named(Enum, m, ns, path)
	case "fixed":
		return b.named(Fixed, m, ns, path)
	case "array":
		items, ok := m["items"]
		if !ok {
			return b.fail(path.Schemaf(avroerr.CodeMissingKey, `array requires "items"`))
		}
		return &Node{Kind: Array, Items: b.node(items, ns, path.Field("items"))}
	case "map":
		values, ok := m["values"]
		if !ok {
			return b.fail(path.Schemaf(avroerr.CodeMissingKey, `map requires "values"`))
		}
		return &Node{Kind: Map, Values: b.node(values, ns, path.Field("values"))}
	case "union":
		return b.fail(path.Schemaf(avroerr.CodeUnknownType, `unions are written as lists, not {"type": "union"}`))
	}
	if strings.ContainsAny(typ, " \t{}[]") || typ == "" {
		return b.fail(path.Field("type").Schemaf(avroerr.CodeUnknownType, "unknown type %q", typ))
	}
	// {"type": "some.Name"} references a named type.
	return b.ref(typ, ns, path.Field("type"))
}

func (b *builder) named(kind Kind, m map[string]any, ns string, path avroerr.PathRef) *Node {
	name, ok := m["name"].(string)
	if !ok {
		return b.fail(path.Schemaf(avroerr.CodeMissingKey, `%s requires a string "name"`, kind))
	}
	namespace := ns
	if v, ok := m["namespace"]; ok {
		s, isStr := v.(string)
		if v != nil && !isStr {
			return b.fail(path.Field("namespace").Schemaf(avroerr.CodeInvalidType, "namespace must be a string"))
		}
		namespace = s
	}
	full := qualify(name, namespace)
	if i := strings.LastIndexByte(full, '.'); i >= 0 {
		namespace = full[:i]
	} else {
		namespace = ""
	}
	if !validFullName(full) {
		return b.fail(path.Field("name").Schemaf(avroerr.CodeInvalidName, "invalid name %q", full))
	}
	if _, ok := primitiveKinds[full]; ok {
		return b.fail(path.Field("name").Schemaf(avroerr.CodeInvalidName, "%q shadows a primitive type", full))
	}

	n := &Node{Kind: kind, Name: full, Namespace: namespace}
	n.Doc, _ = m["doc"].(string)
	n.Aliases = b.aliases(m, namespace, path)
	if _, dup := b.byName[full]; dup {
		b.fail(path.Field("name").Schemaf(avroerr.CodeDuplicateName, "%q is declared more than once", full))
	} else {
		b.byName[full] = n
		b.types = append(b.types, n)
	}

	switch kind {
	case Record:
		b.fields(n, m, path)
	case Enum:
		b.symbols(n, m, path)
	case Fixed:
		size, ok := asInt64(m["size"])
		if !ok || size < 0 {
			b.fail(path.Field("size").Schemaf(avroerr.CodeInvalidType, "fixed requires a non-negative integer size"))
		}
		n.Size = int(size)
		b.logical(n, m, path)
	}
	return n
}

func (b *builder) aliases(m map[string]any, ns string, path avroerr.PathRef) []string {
	raw, ok := m["aliases"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for i, a := range raw {
		s, ok := a.(string)
		if !ok || !validFullName(qualify(s, ns)) {
			b.fail(path.Field("aliases").Index(i).Schemaf(avroerr.CodeInvalidName, "invalid alias %v", a))
			continue
		}
		out = append(out, qualify(s, ns))
	}
	return out
}

func (b *builder) fields(n *Node, m map[string]any, path avroerr.PathRef) {
	raw, ok := m["fields"].([]any)
	if !ok {
		b.fail(path.Schemaf(avroerr.CodeMissingKey, `record requires a "fields" list`))
		return
	}
	seen := make(map[string]bool, len(raw))
	for i, rf := range raw {
		fp := path.Field("fields").Index(i)
		fm, ok := rf.(map[string]any)
		if !ok {
			if am, isAny := rf.(map[any]any); isAny {
				fm, ok = stringKeys(am)
			}
		}
		if !ok {
			b.fail(fp.Schemaf(avroerr.CodeInvalidType, "field must be an object"))
			continue
		}
		name, _ := fm["name"].(string)
		if !_nameRe.MatchString(name) {
			b.fail(fp.Field("name").Schemaf(avroerr.CodeInvalidName, "invalid field name %q", name))
			continue
		}
		if seen[name] {
			b.fail(fp.Field("name").Schemaf(avroerr.CodeDuplicateField, "field %q is declared more than once", name))
			continue
		}
		seen[name] = true
		rt, ok := fm["type"]
		if !ok {
			b.fail(fp.Schemaf(avroerr.CodeMissingKey, `field %q requires "type"`, name))
			continue
		}
		f := &Field{Name: name, Type: b.node(rt, n.Namespace, fp.Field("type"))}
		f.Doc, _ = fm["doc"].(string)
		if al, ok := fm["aliases"].([]any); ok {
			for _, a := range al {
				if s, ok := a.(string); ok {
					f.Aliases = append(f.Aliases, s)
				}
			}
		}
		if def, ok := fm["default"]; ok {
			b.rawDef[f] = def
			b.defaults = append(b.defaults, pendingDefault{field: f, path: fp.Field("default")})
		}
		n.Fields = append(n.Fields, f)
	}
}

func (b *builder) symbols(n *Node, m map[string]any, path avroerr.PathRef) {
	raw, ok := m["symbols"].([]any)
	if !ok {
		b.fail(path.Schemaf(avroerr.CodeMissingKey, `enum requires a "symbols" list`))
		return
	}
	seen := make(map[string]bool, len(raw))
	for i, rs := range raw {
		s, ok := rs.(string)
		if !ok || !_nameRe.MatchString(s) {
			b.fail(path.Field("symbols").Index(i).Schemaf(avroerr.CodeInvalidName, "invalid symbol %v", rs))
			continue
		}
		if seen[s] {
			b.fail(path.Field("symbols").Index(i).Schemaf(avroerr.CodeDuplicateSymbol, "symbol %q is declared more than once", s))
			continue
		}
		seen[s] = true
		n.Symbols = append(n.Symbols, s)
	}
	if d, ok := m["default"]; ok {
		s, isStr := d.(string)
		if !isStr || !seen[s] {
			b.fail(path.Field("default").Schemaf(avroerr.CodeInvalidDefault, "enum default %v is not a symbol", d))
			return
		}
		n.EnumDefault, n.HasEnumDefault = s, true
	}
}

// logical applies a logicalType annotation. Unknown logical types are
// ignored and the underlying type is used, as other implementations do;
// known ones on the wrong underlying type or with bad parameters are errors.
func (b *builder) logical(n *Node, m map[string]any, path avroerr.PathRef) {
	name, ok := m["logicalType"].(string)
	if !ok {
		return
	}
	lt, known := _logicalNames[name]
	if !known {
		return
	}
	lp := path.Field("logicalType")
	want := map[Logical][]Kind{
		LogicalDecimal:         {Bytes, Fixed},
		LogicalDate:            {Int},
		LogicalTimeMillis:      {Int},
		LogicalTimeMicros:      {Long},
		LogicalTimestampMillis: {Long},
		LogicalTimestampMicros: {Long},
		LogicalUUID:            {String},
	}[lt]
	match := false
	for _, k := range want {
		if n.Kind == k {
			match = true
		}
	}
	if !match {
		b.fail(lp.Schemaf(avroerr.CodeInvalidLogical, "%s cannot annotate %s", name, n.Kind))
		return
	}
	if lt == LogicalDecimal {
		precision, ok := asInt64(m["precision"])
		if !ok || precision <= 0 {
			b.fail(path.Field("precision").Schemaf(avroerr.CodeInvalidLogical, "decimal requires a positive precision"))
			return
		}
		var scale int64
		if raw, present := m["scale"]; present {
			if scale, ok = asInt64(raw); !ok {
				b.fail(path.Field("scale").Schemaf(avroerr.CodeInvalidLogical, "decimal scale must be an integer"))
				return
			}
		}
		if scale < 0 || scale > precision {
			b.fail(path.Field("scale").Schemaf(avroerr.CodeInvalidLogical, "decimal scale %d must be within [0,%d]", scale, precision))
			return
		}
		if n.Kind == Fixed && precision > int64(maxFixedPrecision(n.Size)) {
			b.fail(path.Field("precision").Schemaf(avroerr.CodeInvalidLogical, "precision %d does not fit in fixed(%d)", precision, n.Size))
			return
		}
		n.Precision, n.Scale = int(precision), int(scale)
	}
	n.Logical = lt
}

// maxFixedPrecision is floor(log10(2^(8*size-1)-1)), the largest precision a
// signed fixed of size bytes can hold.
func maxFixedPrecision(size int) int {
	if size <= 0 {
		return 0
	}
	m := new(big.Int).Lsh(big.NewInt(1), uint(8*size-1))
	m.Sub(m, big.NewInt(1))
	return len(m.String()) - 1
}

func (b *builder) resolveRefs() {
	for _, p := range b.refs {
		var target *Node
		for _, cand := range candidates(p.name, p.ns) {
			if n, ok := b.byName[cand]; ok {
				target = n
				break
			}
			if n, ok := b.external[cand]; ok {
				target = n
				break
			}
		}
		if target == nil {
			b.fail(p.path.Schemaf(avroerr.CodeUnresolvedName, "unknown type or unresolved name %q", p.name))
			// keep the graph walkable for the remaining checks
			target = &Node{Kind: Null}
		}
		p.ref.Target = target
	}
}

func (b *builder) checkUnions() {
	for _, u := range b.unions {
		if len(u.node.Branches) == 0 {
			b.fail(u.path.Schemaf(avroerr.CodeInvalidUnion, "union must have at least one branch"))
			continue
		}
		seen := make(map[string]int, len(u.node.Branches))
		for i, br := range u.node.Branches {
			if br.Resolve().Kind == Union {
				b.fail(u.path.Index(i).Schemaf(avroerr.CodeInvalidUnion, "unions may not immediately contain unions"))
				continue
			}
			key := br.BranchKey()
			if j, dup := seen[key]; dup {
				b.fail(u.path.Index(i).Schemaf(avroerr.CodeInvalidUnion, "branch %d duplicates branch %d (%s)", i, j, key))
				continue
			}
			seen[key] = i
		}
	}
}

func (b *builder) convertDefaults() {
	for _, d := range b.defaults {
		v, err := b.defaultValue(d.field.Type, b.rawDef[d.field], d.path, 0)
		if err != nil {
			b.issues = avroerr.AppendIssues(b.issues, *err)
			continue
		}
		d.field.Default, d.field.HasDefault = v, true
	}
}

// candidates lists the full names a reference may denote, most specific first.
func candidates(name, ns string) []string {
	if strings.Contains(name, ".") || ns == "" {
		return []string{name}
	}
	return []string{ns + "." + name, name}
}

func qualify(name, ns string) string {
	if strings.Contains(name, ".") || ns == "" {
		return name
	}
	return ns + "." + name
}

func validFullName(full string) bool {
	for _, part := range strings.Split(full, ".") {
		if !_nameRe.MatchString(part) {
			return false
		}
	}
	return true
}

func stringKeys(m map[any]any) (map[string]any, bool) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		ks, ok := k.(string)
		if !ok {
			return nil, false
		}
		out[ks] = v
	}
	return out, true
}
