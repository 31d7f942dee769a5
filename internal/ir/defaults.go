package ir

import (
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/reoring/avrogen/avroerr"
	"github.com/reoring/avrogen/wire"
)

const _maxDefaultDepth = 64

// defaultValue converts a raw default into the native value the generated
// decoder would produce for n. Union defaults apply to the first branch.
func (b *builder) defaultValue(n *Node, raw any, path avroerr.PathRef, depth int) (any, *avroerr.Issue) {
	bad := func(format string, args ...any) (any, *avroerr.Issue) {
		it := path.Schemaf(avroerr.CodeInvalidDefault, format, args...)
		return nil, &it
	}
	if depth > _maxDefaultDepth {
		return bad("default nests too deeply")
	}
	n = n.Resolve()
	switch n.Logical {
	case LogicalDecimal:
		switch t := raw.(type) {
		case string:
			bs, ok := latin1(t)
			if !ok {
				return bad("decimal default must be a bytes string")
			}
			d := scaledDecimal(wire.FromTwosComplement(bs), n.Scale)
			if _, err := wire.DecimalUnscaled(d, n.Precision, n.Scale); err != nil {
				return bad("decimal default %s exceeds precision %d", d, n.Precision)
			}
			return d, nil
		default:
			if s, ok := numberText(raw); ok {
				d, _, err := apd.NewFromString(s)
				if err != nil {
					return bad("invalid decimal default %v", raw)
				}
				c, err := wire.DecimalUnscaled(d, n.Precision, n.Scale)
				if err != nil {
					return bad("decimal default %v does not fit precision %d and scale %d", raw, n.Precision, n.Scale)
				}
				return scaledDecimal(c, n.Scale), nil
			}
			return bad("invalid decimal default %v", raw)
		}
	case LogicalDate:
		if s, ok := raw.(string); ok {
			t, err := time.Parse(time.DateOnly, s)
			if err != nil {
				return bad("invalid date default %q", s)
			}
			return t.UTC(), nil
		}
		days, ok := asInt64(raw)
		if !ok || days < math.MinInt32 || days > math.MaxInt32 {
			return bad("date default must be a day count")
		}
		return time.Unix(days*86400, 0).UTC(), nil
	case LogicalTimeMillis:
		ms, ok := asInt64(raw)
		if !ok {
			return bad("time-millis default must be an integer")
		}
		return time.Duration(ms) * time.Millisecond, nil
	case LogicalTimeMicros:
		us, ok := asInt64(raw)
		if !ok {
			return bad("time-micros default must be an integer")
		}
		return time.Duration(us) * time.Microsecond, nil
	case LogicalTimestampMillis:
		ms, ok := asInt64(raw)
		if !ok {
			return bad("timestamp-millis default must be an integer")
		}
		return time.UnixMilli(ms).UTC(), nil
	case LogicalTimestampMicros:
		us, ok := asInt64(raw)
		if !ok {
			return bad("timestamp-micros default must be an integer")
		}
		return time.UnixMicro(us).UTC(), nil
	case LogicalUUID:
		s, _ := raw.(string)
		u, err := uuid.Parse(s)
		if err != nil {
			return bad("invalid uuid default %v", raw)
		}
		return u, nil
	}

	switch n.Kind {
	case Null:
		if raw != nil {
			return bad("null default must be null")
		}
		return nil, nil
	case Boolean:
		v, ok := raw.(bool)
		if !ok {
			return bad("boolean default must be true or false")
		}
		return v, nil
	case Int:
		v, ok := asInt64(raw)
		if !ok || v < math.MinInt32 || v > math.MaxInt32 {
			return bad("int default %v out of range", raw)
		}
		return int32(v), nil
	case Long:
		v, ok := asInt64(raw)
		if !ok {
			return bad("long default %v is not an integer", raw)
		}
		return v, nil
	case Float:
		v, ok := asFloat64(raw)
		if !ok {
			return bad("float default %v is not a number", raw)
		}
		return float32(v), nil
	case Double:
		v, ok := asFloat64(raw)
		if !ok {
			return bad("double default %v is not a number", raw)
		}
		return v, nil
	case Bytes, Fixed:
		s, ok := raw.(string)
		if !ok {
			return bad("%s default must be a string", n.Kind)
		}
		bs, ok := latin1(s)
		if !ok {
			return bad("%s default has code points above U+00FF", n.Kind)
		}
		if n.Kind == Fixed && len(bs) != n.Size {
			return bad("fixed default has %d bytes, want %d", len(bs), n.Size)
		}
		return bs, nil
	case String:
		s, ok := raw.(string)
		if !ok {
			return bad("string default must be a string")
		}
		return s, nil
	case Enum:
		s, ok := raw.(string)
		if !ok || n.SymbolIndex(s) < 0 {
			return bad("enum default %v is not a symbol of %s", raw, n.Name)
		}
		return s, nil
	case Array:
		list, ok := raw.([]any)
		if !ok {
			return bad("array default must be a list")
		}
		out := make([]any, len(list))
		for i, item := range list {
			v, err := b.defaultValue(n.Items, item, path.Index(i), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case Map:
		m, ok := asObject(raw)
		if !ok {
			return bad("map default must be an object")
		}
		out := make(map[string]any, len(m))
		for k, item := range m {
			v, err := b.defaultValue(n.Values, item, path.Field(k), depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case Union:
		return b.defaultValue(n.Branches[0], raw, path, depth+1)
	case Record:
		m, ok := asObject(raw)
		if !ok {
			return bad("record default must be an object")
		}
		out := make(map[string]any, len(n.Fields))
		for _, f := range n.Fields {
			item, present := m[f.Name]
			if !present {
				if item, present = b.rawDef[f]; !present {
					return bad("record default lacks field %q", f.Name)
				}
			}
			v, err := b.defaultValue(f.Type, item, path.Field(f.Name), depth+1)
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
		}
		return out, nil
	}
	return bad("unsupported default for %s", n.Kind)
}

// latin1 maps each code point to one byte, the JSON encoding Avro uses for
// bytes and fixed defaults.
func latin1(s string) ([]byte, bool) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return nil, false
		}
		out = append(out, byte(r))
	}
	return out, true
}

func asObject(raw any) (map[string]any, bool) {
	switch t := raw.(type) {
	case map[string]any:
		return t, true
	case map[any]any:
		return stringKeys(t)
	}
	return nil, false
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), t <= math.MaxInt64
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), t <= math.MaxInt64
	case float64:
		if t != math.Trunc(t) || t < math.MinInt64 || t >= math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case float32:
		return asInt64(float64(t))
	case json.Number:
		i, err := t.Int64()
		return i, err == nil
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func numberText(v any) (string, bool) {
	switch t := v.(type) {
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	if i, ok := asInt64(v); ok {
		return strconv.FormatInt(i, 10), true
	}
	return "", false
}

// scaledDecimal returns the decimal whose unscaled value is c.
func scaledDecimal(c *big.Int, scale int) *apd.Decimal {
	d := new(apd.Decimal)
	d.Exponent = int32(-scale)
	if c.Sign() < 0 {
		d.Negative = true
		c = new(big.Int).Neg(c)
	}
	d.Coeff.SetMathBigInt(c)
	return d
}
