package gen

import (
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Union is an explicitly tagged union value. Encoding a Union bypasses shape
// inference; decoding produces one when Options.TaggedUnions is set.
type Union struct {
	Index int
	Value any
}

// MapEntry is one key/value pair of an ordered map value.
type MapEntry struct {
	Key   string
	Value any
}

// MapEntries is a map value whose encoded order is the slice order. Plain Go
// maps are encoded in sorted key order.
type MapEntries []MapEntry

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint:
		return int64(t), uint64(t) <= math.MaxInt64
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

// isInteger reports whether v is one of Go's integer types.
func isInteger(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
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
	if isInteger(v) {
		i, ok := asInt64(v)
		return float64(i), ok
	}
	return 0, false
}

func asDecimal(v any) (*apd.Decimal, bool) {
	switch t := v.(type) {
	case *apd.Decimal:
		return t, t != nil
	case apd.Decimal:
		return &t, true
	case string:
		d, _, err := apd.NewFromString(t)
		return d, err == nil
	case json.Number:
		d, _, err := apd.NewFromString(t.String())
		return d, err == nil
	case float64:
		if math.IsInf(t, 0) || math.IsNaN(t) {
			return nil, false
		}
		d, _, err := apd.NewFromString(strconv.FormatFloat(t, 'f', -1, 64))
		return d, err == nil
	case float32:
		return asDecimal(float64(t))
	}
	if isInteger(v) {
		i, ok := asInt64(v)
		return apd.New(i, 0), ok
	}
	return nil, false
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts, true
		}
		if ts, err := time.Parse(time.DateOnly, t); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func asDuration(v any) (time.Duration, bool) {
	switch t := v.(type) {
	case time.Duration:
		return t, true
	case string:
		d, err := time.ParseDuration(t)
		return d, err == nil
	}
	return 0, false
}

func asUUID(v any) (uuid.UUID, bool) {
	switch t := v.(type) {
	case uuid.UUID:
		return t, true
	case [16]byte:
		return uuid.UUID(t), true
	case string:
		u, err := uuid.Parse(t)
		return u, err == nil
	}
	return uuid.UUID{}, false
}

func asBytes(v any) ([]byte, bool) {
	switch t := v.(type) {
	case []byte:
		return t, true
	case string:
		return []byte(t), true
	}
	return nil, false
}

// asList views any slice or array value (other than bytes) as a list.
func asList(v any) (int, func(i int) any, bool) {
	switch t := v.(type) {
	case []any:
		return len(t), func(i int) any { return t[i] }, true
	case []byte, string, nil:
		return 0, nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return 0, nil, false
	}
	return rv.Len(), func(i int) any { return rv.Index(i).Interface() }, true
}

// asEntries views a map value as ordered entries. Go maps yield sorted keys
// so that equal values always encode to equal bytes.
func asEntries(v any) (MapEntries, bool) {
	switch t := v.(type) {
	case MapEntries:
		return t, true
	case []MapEntry:
		return MapEntries(t), true
	case map[string]any:
		out := make(MapEntries, 0, len(t))
		for k, x := range t {
			out = append(out, MapEntry{Key: k, Value: x})
		}
		sortEntries(out)
		return out, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(MapEntries, 0, rv.Len())
	it := rv.MapRange()
	for it.Next() {
		out = append(out, MapEntry{Key: it.Key().String(), Value: it.Value().Interface()})
	}
	sortEntries(out)
	return out, true
}

func sortEntries(es MapEntries) {
	slices.SortFunc(es, func(a, b MapEntry) int { return strings.Compare(a.Key, b.Key) })
}

// asFields views a record value as a field lookup.
func asFields(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case MapEntries:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = e.Value
		}
		return m, true
	}
	return nil, false
}

// cloneValue deep-copies the mutable parts of a decoded or default value so
// callers never share state with the compiled schema.
func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = cloneValue(x)
		}
		return out
	case []byte:
		return append([]byte(nil), t...)
	case *apd.Decimal:
		return new(apd.Decimal).Set(t)
	}
	return v
}
