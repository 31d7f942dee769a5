package gen

import (
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/reoring/avrogen/avroerr"
	"github.com/reoring/avrogen/internal/ir"
	"github.com/reoring/avrogen/wire"
)

type matchLevel int

const (
	noMatch matchLevel = iota
	looseMatch
	exactMatch
)

// matcher reports how well a value fits one union branch.
type matcher func(v any) matchLevel

func (g *generator) unionEncoder(n *ir.Node) encodeFn {
	branches := make([]encodeFn, len(n.Branches))
	checks := make([]matcher, len(n.Branches))
	for i, b := range n.Branches {
		branches[i] = g.encoder(b)
		checks[i] = branchMatcher(b.Resolve())
	}
	return func(w *wire.Writer, v any) error {
		var (
			index int
			err   error
		)
		switch t := v.(type) {
		case Union:
			index, v = t.Index, t.Value
		case *Union:
			if t == nil {
				return mismatch(n, v)
			}
			index, v = t.Index, t.Value
		default:
			if index, err = selectBranch(n, checks, v); err != nil {
				return err
			}
		}
		if index < 0 || index >= len(branches) {
			return avroerr.Serializationf("/", avroerr.CodeNoUnionBranch, "union index %d out of range [0,%d)", index, len(branches))
		}
		w.WriteUnionIndex(index)
		return branches[index](w, v)
	}
}

// selectBranch picks the branch for an untagged value: the single exact
// match, otherwise the first loose match in declaration order.
func selectBranch(n *ir.Node, checks []matcher, v any) (int, error) {
	exact, loose := -1, -1
	for i, c := range checks {
		switch c(v) {
		case exactMatch:
			if exact >= 0 {
				return 0, avroerr.Serializationf("/", avroerr.CodeUnionAmbiguous,
					"%T matches both %s and %s", v, n.Branches[exact].TypeName(), n.Branches[i].TypeName())
			}
			exact = i
		case looseMatch:
			if loose < 0 {
				loose = i
			}
		}
	}
	if exact >= 0 {
		return exact, nil
	}
	if loose >= 0 {
		return loose, nil
	}
	return 0, avroerr.Serializationf("/", avroerr.CodeNoUnionBranch, "%T matches no branch of %s", v, unionName(n))
}

func unionName(n *ir.Node) string {
	s := "["
	for i, b := range n.Branches {
		if i > 0 {
			s += ","
		}
		s += b.TypeName()
	}
	return s + "]"
}

func branchMatcher(n *ir.Node) matcher {
	switch n.Logical {
	case ir.LogicalDecimal:
		return func(v any) matchLevel {
			switch v.(type) {
			case *apd.Decimal, apd.Decimal:
				return exactMatch
			case []byte:
				if n.Kind == ir.Fixed {
					return noMatch
				}
				return looseMatch
			}
			if _, ok := asDecimal(v); ok {
				return looseMatch
			}
			return noMatch
		}
	case ir.LogicalDate:
		return func(v any) matchLevel {
			switch t := v.(type) {
			case time.Time:
				return looseMatch
			case string:
				if _, err := time.Parse(time.DateOnly, t); err == nil {
					return looseMatch
				}
			}
			return noMatch
		}
	case ir.LogicalTimeMillis, ir.LogicalTimeMicros:
		return func(v any) matchLevel {
			if _, ok := v.(time.Duration); ok {
				return exactMatch
			}
			return noMatch
		}
	case ir.LogicalTimestampMillis, ir.LogicalTimestampMicros:
		return func(v any) matchLevel {
			switch v.(type) {
			case time.Time:
				return exactMatch
			case string:
				if _, ok := asTime(v); ok {
					return looseMatch
				}
			}
			return noMatch
		}
	case ir.LogicalUUID:
		return func(v any) matchLevel {
			switch v.(type) {
			case uuid.UUID:
				return exactMatch
			case string:
				if _, ok := asUUID(v); ok {
					return looseMatch
				}
			}
			return noMatch
		}
	}

	switch n.Kind {
	case ir.Null:
		return func(v any) matchLevel {
			if v == nil {
				return exactMatch
			}
			return noMatch
		}
	case ir.Boolean:
		return func(v any) matchLevel {
			if _, ok := v.(bool); ok {
				return exactMatch
			}
			return noMatch
		}
	case ir.Int:
		return integerMatcher(func(v any) bool { _, ok := v.(int32); return ok }, true)
	case ir.Long:
		return integerMatcher(func(v any) bool { _, ok := v.(int64); return ok }, false)
	case ir.Float:
		return floatMatcher(func(v any) bool { _, ok := v.(float32); return ok })
	case ir.Double:
		return floatMatcher(func(v any) bool { _, ok := v.(float64); return ok })
	case ir.Bytes:
		return func(v any) matchLevel {
			switch v.(type) {
			case []byte:
				return exactMatch
			case string:
				return looseMatch
			}
			return noMatch
		}
	case ir.String:
		return func(v any) matchLevel {
			switch t := v.(type) {
			case string:
				return exactMatch
			case []byte:
				if utf8.Valid(t) {
					return looseMatch
				}
			}
			return noMatch
		}
	case ir.Fixed:
		return func(v any) matchLevel {
			if b, ok := v.([]byte); ok && len(b) == n.Size {
				return looseMatch
			}
			return noMatch
		}
	case ir.Enum:
		return func(v any) matchLevel {
			if s, ok := v.(string); ok && n.SymbolIndex(s) >= 0 {
				return looseMatch
			}
			return noMatch
		}
	case ir.Array:
		return func(v any) matchLevel {
			if _, _, ok := asList(v); ok {
				return exactMatch
			}
			return noMatch
		}
	case ir.Map:
		return func(v any) matchLevel {
			switch v.(type) {
			case MapEntries, []MapEntry:
				return exactMatch
			case map[string]any:
				return looseMatch
			}
			if _, ok := asEntries(v); ok {
				return looseMatch
			}
			return noMatch
		}
	case ir.Record:
		return recordMatcher(n)
	}
	return func(any) matchLevel { return noMatch }
}

func integerMatcher(native func(any) bool, narrow bool) matcher {
	return func(v any) matchLevel {
		if native(v) {
			return exactMatch
		}
		var (
			i  int64
			ok bool
		)
		switch t := v.(type) {
		case json.Number:
			i, ok = asInt64(t)
		default:
			if isInteger(v) {
				i, ok = asInt64(v)
			}
		}
		if !ok || narrow && (i < -1<<31 || i > 1<<31-1) {
			return noMatch
		}
		return looseMatch
	}
}

func floatMatcher(native func(any) bool) matcher {
	return func(v any) matchLevel {
		if native(v) {
			return exactMatch
		}
		if _, ok := asFloat64(v); ok {
			return looseMatch
		}
		return noMatch
	}
}

// recordMatcher matches a field mapping whose keys are all fields of the
// record and that supplies every field lacking a default.
func recordMatcher(n *ir.Node) matcher {
	known := make(map[string]bool, len(n.Fields))
	var required []string
	for _, f := range n.Fields {
		known[f.Name] = true
		if !f.HasDefault {
			required = append(required, f.Name)
		}
	}
	return func(v any) matchLevel {
		m, ok := v.(map[string]any)
		if !ok {
			return noMatch
		}
		if unknownKey(m, known) != "" {
			return noMatch
		}
		for _, name := range required {
			if _, ok := m[name]; !ok {
				return noMatch
			}
		}
		return exactMatch
	}
}
