// Package ir defines the normalized schema model consumed by the code
// generator. This package is internal and not part of the public API.
package ir

// Kind identifies a schema node type.
type Kind int

const (
	Null Kind = iota
	Boolean
	Int
	Long
	Float
	Double
	Bytes
	String
	Fixed
	Enum
	Array
	Map
	Union
	Record
	// Ref is a named-reference, resolved to its Target after building.
	Ref
)

var _kindNames = [...]string{
	Null:    "null",
	Boolean: "boolean",
	Int:     "int",
	Long:    "long",
	Float:   "float",
	Double:  "double",
	Bytes:   "bytes",
	String:  "string",
	Fixed:   "fixed",
	Enum:    "enum",
	Array:   "array",
	Map:     "map",
	Union:   "union",
	Record:  "record",
	Ref:     "ref",
}

func (k Kind) String() string {
	if int(k) < len(_kindNames) {
		return _kindNames[k]
	}
	return "unknown"
}

// primitiveKinds maps primitive type names to kinds.
var primitiveKinds = map[string]Kind{
	"null":    Null,
	"boolean": Boolean,
	"int":     Int,
	"long":    Long,
	"float":   Float,
	"double":  Double,
	"bytes":   Bytes,
	"string":  String,
}

// Logical identifies a logical type annotation.
type Logical int

const (
	LogicalNone Logical = iota
	LogicalDecimal
	LogicalDate
	LogicalTimeMillis
	LogicalTimeMicros
	LogicalTimestampMillis
	LogicalTimestampMicros
	LogicalUUID
)

var _logicalNames = map[string]Logical{
	"decimal":          LogicalDecimal,
	"date":             LogicalDate,
	"time-millis":      LogicalTimeMillis,
	"time-micros":      LogicalTimeMicros,
	"timestamp-millis": LogicalTimestampMillis,
	"timestamp-micros": LogicalTimestampMicros,
	"uuid":             LogicalUUID,
}

func (l Logical) String() string {
	for name, v := range _logicalNames {
		if v == l {
			return name
		}
	}
	return ""
}

// Node is one vertex of a resolved schema graph. Named nodes (record, enum,
// fixed) are shared: every reference to them points at the same *Node through
// a Ref node, so the graph may contain cycles through Ref only.
type Node struct {
	Kind Kind

	// Named types.
	Name      string // fully-qualified
	Namespace string
	Aliases   []string // fully-qualified
	Doc       string

	Size           int      // fixed
	Symbols        []string // enum
	EnumDefault    string   // enum; valid when HasEnumDefault
	HasEnumDefault bool

	Items    *Node   // array
	Values   *Node   // map
	Branches []*Node // union
	Fields   []*Field

	Logical   Logical
	Precision int // decimal
	Scale     int // decimal

	Target *Node // ref
}

// Field is one record field.
type Field struct {
	Name       string
	Type       *Node
	Aliases    []string
	Doc        string
	Default    any // native value; valid when HasDefault
	HasDefault bool
}

// IsNamed reports whether the node declares a named type.
func (n *Node) IsNamed() bool {
	return n.Kind == Record || n.Kind == Enum || n.Kind == Fixed
}

// Resolve follows a Ref to the named node it points to.
func (n *Node) Resolve() *Node {
	for n != nil && n.Kind == Ref {
		n = n.Target
	}
	return n
}

// SymbolIndex returns the index of an enum symbol, or -1.
func (n *Node) SymbolIndex(sym string) int {
	for i, s := range n.Symbols {
		if s == sym {
			return i
		}
	}
	return -1
}

// FieldIndex returns the index of a record field by name, or -1.
func (n *Node) FieldIndex(name string) int {
	for i, f := range n.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// TypeName returns the display name of a type: the full name of named types,
// otherwise the kind name qualified by the logical type.
func (n *Node) TypeName() string {
	r := n.Resolve()
	if r.IsNamed() {
		return r.Name
	}
	if r.Logical != LogicalNone {
		return r.Kind.String() + "." + r.Logical.String()
	}
	return r.Kind.String()
}

// BranchKey identifies a union branch for uniqueness: the full name of named
// types, otherwise the bare kind. A logical annotation does not make a
// distinct branch.
func (n *Node) BranchKey() string {
	r := n.Resolve()
	if r.IsNamed() {
		return r.Name
	}
	return r.Kind.String()
}

// Schema is a built schema document.
type Schema struct {
	Root *Node
	// Types lists the named types declared by the document, in declaration order.
	Types  []*Node
	byName map[string]*Node
}

// Lookup returns a named type declared by the document.
func (s *Schema) Lookup(fullName string) (*Node, bool) {
	n, ok := s.byName[fullName]
	return n, ok
}
