package gen_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/linkedin/goavro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/avrogen/avroerr"
	"github.com/reoring/avrogen/internal/gen"
	"github.com/reoring/avrogen/internal/ir"
	"github.com/reoring/avrogen/wire"
)

var decimalEqual = cmp.Comparer(func(a, b *apd.Decimal) bool { return a.Cmp(b) == 0 })

func schema(t *testing.T, doc string) *ir.Node {
	t.Helper()
	var raw any
	require.NoError(t, json.Unmarshal([]byte(doc), &raw))
	s, err := ir.Build(raw, ir.Options{})
	require.NoError(t, err)
	return s.Root
}

func program(t *testing.T, doc string) *gen.Program {
	t.Helper()
	return gen.Generate(schema(t, doc), gen.Options{})
}

func encode(t *testing.T, p *gen.Program, v any) []byte {
	t.Helper()
	w := wire.NewWriter(nil)
	require.NoError(t, p.Encode(w, v))
	return w.Bytes()
}

func issue(t *testing.T, err error) avroerr.Issue {
	t.Helper()
	require.Error(t, err)
	iss, ok := avroerr.AsIssues(err)
	require.True(t, ok, "expected issues, got %T: %v", err, err)
	require.NotEmpty(t, iss)
	return iss[0]
}

const sampleSchema = `{
  "type": "record", "name": "Sample", "namespace": "test",
  "fields": [
    {"name": "id", "type": "long"},
    {"name": "name", "type": "string"},
    {"name": "score", "type": "double"},
    {"name": "ratio", "type": "float"},
    {"name": "active", "type": "boolean"},
    {"name": "tags", "type": {"type": "array", "items": "string"}},
    {"name": "attrs", "type": {"type": "map", "values": "int"}},
    {"name": "kind", "type": {"type": "enum", "name": "Kind", "symbols": ["A", "B", "C"]}},
    {"name": "hash", "type": {"type": "fixed", "name": "Hash", "size": 4}},
    {"name": "blob", "type": "bytes"},
    {"name": "note", "type": ["null", "string"]},
    {"name": "count", "type": "int"}
  ]
}`

func sampleValue(note any) map[string]any {
	return map[string]any{
		"id":     int64(42),
		"name":   "alice",
		"score":  3.5,
		"ratio":  float32(0.25),
		"active": true,
		"tags":   []any{"x", "y"},
		"attrs":  map[string]any{"k": int32(7)},
		"kind":   "B",
		"hash":   []byte{1, 2, 3, 4},
		"blob":   []byte("zz"),
		"note":   note,
		"count":  int32(-3),
	}
}

func TestEncodeMatchesGoavro(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		ours   any
		theirs any
	}{
		{name: "int", schema: `"int"`, ours: int32(-64), theirs: int32(-64)},
		{name: "long", schema: `"long"`, ours: int64(1) << 40, theirs: int64(1) << 40},
		{name: "string", schema: `"string"`, ours: "héllo", theirs: "héllo"},
		{name: "double", schema: `"double"`, ours: -2.75, theirs: -2.75},
		{name: "array", schema: `{"type": "array", "items": "long"}`, ours: []any{int64(1), int64(-1), int64(300)}, theirs: []any{int64(1), int64(-1), int64(300)}},
		{name: "empty array", schema: `{"type": "array", "items": "int"}`, ours: []any{}, theirs: []any{}},
		{name: "union null", schema: `["null", "string"]`, ours: nil, theirs: nil},
		{name: "union string", schema: `["null", "string"]`, ours: "x", theirs: goavro.Union("string", "x")},
		{name: "record", schema: sampleSchema, ours: sampleValue("hi"), theirs: sampleValue(goavro.Union("string", "hi"))},
		{name: "record null note", schema: sampleSchema, ours: sampleValue(nil), theirs: sampleValue(nil)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			codec, err := goavro.NewCodec(tc.schema)
			require.NoError(t, err)
			want, err := codec.BinaryFromNative(nil, tc.theirs)
			require.NoError(t, err)
			assert.Equal(t, want, encode(t, program(t, tc.schema), tc.ours))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		value  any
	}{
		{name: "record", schema: sampleSchema, value: sampleValue("hi")},
		{name: "nested", schema: `{"type": "record", "name": "Outer", "fields": [
			{"name": "inner", "type": {"type": "record", "name": "Inner", "fields": [{"name": "x", "type": "int"}]}},
			{"name": "list", "type": {"type": "array", "items": "Inner"}}]}`,
			value: map[string]any{
				"inner": map[string]any{"x": int32(1)},
				"list":  []any{map[string]any{"x": int32(2)}, map[string]any{"x": int32(3)}},
			}},
		{name: "map of arrays", schema: `{"type": "map", "values": {"type": "array", "items": "double"}}`,
			value: map[string]any{"a": []any{1.5}, "b": []any{}}},
		{name: "decimal", schema: `{"type": "bytes", "logicalType": "decimal", "precision": 6, "scale": 2}`,
			value: mustDecimal(t, "-1234.50")},
		{name: "decimal fixed", schema: `{"type": "fixed", "name": "Money", "size": 8, "logicalType": "decimal", "precision": 10, "scale": 3}`,
			value: mustDecimal(t, "42.001")},
		{name: "date", schema: `{"type": "int", "logicalType": "date"}`,
			value: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "time-millis", schema: `{"type": "int", "logicalType": "time-millis"}`,
			value: 3*time.Second + 500*time.Millisecond},
		{name: "time-micros", schema: `{"type": "long", "logicalType": "time-micros"}`,
			value: 90*time.Minute + 7*time.Microsecond},
		{name: "timestamp-millis", schema: `{"type": "long", "logicalType": "timestamp-millis"}`,
			value: time.UnixMilli(1700000000123).UTC()},
		{name: "timestamp-micros", schema: `{"type": "long", "logicalType": "timestamp-micros"}`,
			value: time.UnixMicro(1700000000123456).UTC()},
		{name: "uuid", schema: `{"type": "string", "logicalType": "uuid"}`,
			value: uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")},
		{name: "union of logicals", schema: `["null", {"type": "string", "logicalType": "uuid"}, {"type": "long", "logicalType": "timestamp-millis"}]`,
			value: time.UnixMilli(5).UTC()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := program(t, tc.schema)
			data := encode(t, p, tc.value)
			r := wire.NewReader(data)
			got, err := p.Decode(r)
			require.NoError(t, err)
			assert.Equal(t, 0, r.Remaining())
			if diff := cmp.Diff(tc.value, got, decimalEqual); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func mustDecimal(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestSelfReferentialRecord(t *testing.T) {
	p := program(t, `{"type": "record", "name": "LinkedList", "fields": [
		{"name": "value", "type": "int"},
		{"name": "next", "type": ["null", "LinkedList"]}]}`)
	v := map[string]any{
		"value": int32(1),
		"next":  map[string]any{"value": int32(2), "next": nil},
	}
	data := encode(t, p, v)
	assert.Equal(t, []byte{0x02, 0x02, 0x04, 0x00}, data)
	assert.Equal(t, []string{"LinkedList"}, p.Types())

	got, err := p.Decode(wire.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestUnionSelection(t *testing.T) {
	p := program(t, `["null", "string", {"type": "record", "name": "R", "fields": [{"name": "a", "type": "int"}]}]`)

	assert.Equal(t, []byte{0x00}, encode(t, p, nil))
	assert.Equal(t, []byte{0x02, 0x04, 'h', 'i'}, encode(t, p, "hi"))
	assert.Equal(t, []byte{0x04, 0x02}, encode(t, p, map[string]any{"a": int32(1)}))

	err := p.Encode(wire.NewWriter(nil), 3.5)
	assert.True(t, errors.Is(err, avroerr.ErrSerialization))
	assert.Equal(t, avroerr.CodeNoUnionBranch, issue(t, err).Code)
}

func TestUnionLooseMatchOrder(t *testing.T) {
	p := program(t, `["long", "int"]`)
	// Neither branch is exact for a Go int; the first loose match wins.
	assert.Equal(t, []byte{0x00, 0x0a}, encode(t, p, 5))
	// int32 is exact for the second branch.
	assert.Equal(t, []byte{0x02, 0x0a}, encode(t, p, int32(5)))
}

func TestUnionAmbiguity(t *testing.T) {
	p := program(t, `[
		{"type": "record", "name": "A", "fields": [{"name": "x", "type": "int"}]},
		{"type": "record", "name": "B", "fields": [{"name": "x", "type": "int"}]}]`)

	err := p.Encode(wire.NewWriter(nil), map[string]any{"x": int32(1)})
	assert.True(t, errors.Is(err, avroerr.ErrSerialization))
	assert.Equal(t, avroerr.CodeUnionAmbiguous, issue(t, err).Code)

	// An explicit tag resolves the ambiguity.
	assert.Equal(t, []byte{0x02, 0x02}, encode(t, p, gen.Union{Index: 1, Value: map[string]any{"x": int32(1)}}))
}

func TestTaggedUnionDecode(t *testing.T) {
	s := schema(t, `["null", "string"]`)
	p := gen.Generate(s, gen.Options{TaggedUnions: true})
	got, err := p.Decode(wire.NewReader([]byte{0x02, 0x02, 'a'}))
	require.NoError(t, err)
	assert.Equal(t, gen.Union{Index: 1, Value: "a"}, got)
}

func TestFieldOrderSensitivity(t *testing.T) {
	ab := program(t, `{"type": "record", "name": "P", "fields": [{"name": "a", "type": "int"}, {"name": "b", "type": "string"}]}`)
	ba := program(t, `{"type": "record", "name": "P", "fields": [{"name": "b", "type": "string"}, {"name": "a", "type": "int"}]}`)
	v := map[string]any{"a": int32(1), "b": "z"}
	assert.Equal(t, []byte{0x02, 0x02, 'z'}, encode(t, ab, v))
	assert.Equal(t, []byte{0x02, 'z', 0x02}, encode(t, ba, v))
}

func TestArrayBlocks(t *testing.T) {
	p := program(t, `{"type": "array", "items": "int"}`)
	assert.Equal(t, []byte{0x00}, encode(t, p, []any{}))
	assert.Equal(t, []byte{0x04, 0x02, 0x04, 0x00}, encode(t, p, []int32{1, 2}))

	// Two blocks, the first with a negative count and a byte size.
	got, err := p.Decode(wire.NewReader([]byte{0x03, 0x04, 0x02, 0x04, 0x02, 0x06, 0x00}))
	require.NoError(t, err)
	assert.Equal(t, []any{int32(1), int32(2), int32(3)}, got)
}

func TestMapOrdering(t *testing.T) {
	p := program(t, `{"type": "map", "values": "int"}`)
	sorted := encode(t, p, map[string]any{"b": 2, "a": 1})
	assert.Equal(t, []byte{0x04, 0x02, 'a', 0x02, 0x02, 'b', 0x04, 0x00}, sorted)

	ordered := encode(t, p, gen.MapEntries{{Key: "b", Value: 2}, {Key: "a", Value: 1}})
	assert.Equal(t, []byte{0x04, 0x02, 'b', 0x04, 0x02, 'a', 0x02, 0x00}, ordered)
}

func TestOrderedMapsKeepWireOrder(t *testing.T) {
	p := gen.Generate(schema(t, `{"type": "map", "values": "int"}`), gen.Options{OrderedMaps: true})
	data := []byte{0x04, 0x02, 'b', 0x04, 0x02, 'a', 0x02, 0x00}
	got, err := p.Decode(wire.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, gen.MapEntries{{Key: "b", Value: int32(2)}, {Key: "a", Value: int32(1)}}, got)
	assert.Equal(t, data, encode(t, p, got))

	empty, err := p.Decode(wire.NewReader([]byte{0x00}))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRecordDefaults(t *testing.T) {
	p := program(t, `{"type": "record", "name": "D", "fields": [
		{"name": "a", "type": "int"},
		{"name": "b", "type": "string", "default": "dflt"}]}`)
	got := encode(t, p, map[string]any{"a": int32(1)})
	assert.Equal(t, append([]byte{0x02, 0x08}, "dflt"...), got)
}

func TestSerializationErrorPaths(t *testing.T) {
	p := program(t, `{"type": "record", "name": "Outer", "fields": [
		{"name": "inner", "type": {"type": "record", "name": "Inner", "fields": [{"name": "x", "type": "int"}]}},
		{"name": "items", "type": {"type": "array", "items": "string"}},
		{"name": "kind", "type": {"type": "enum", "name": "K", "symbols": ["A"]}}]}`)

	tests := []struct {
		name  string
		value map[string]any
		path  string
		code  string
	}{
		{
			name:  "missing nested field",
			value: map[string]any{"inner": map[string]any{}, "items": []any{}, "kind": "A"},
			path:  "/inner/x",
			code:  avroerr.CodeMissingField,
		},
		{
			name:  "wrong item type",
			value: map[string]any{"inner": map[string]any{"x": 1}, "items": []any{"ok", 7}, "kind": "A"},
			path:  "/items/1",
			code:  avroerr.CodeInvalidType,
		},
		{
			name:  "unknown field",
			value: map[string]any{"inner": map[string]any{"x": 1}, "items": []any{}, "kind": "A", "extra": true},
			path:  "/extra",
			code:  avroerr.CodeUnknownField,
		},
		{
			name:  "bad symbol",
			value: map[string]any{"inner": map[string]any{"x": 1}, "items": []any{}, "kind": "Z"},
			path:  "/kind",
			code:  avroerr.CodeInvalidSymbol,
		},
		{
			name:  "int out of range",
			value: map[string]any{"inner": map[string]any{"x": int64(1) << 40}, "items": []any{}, "kind": "A"},
			path:  "/inner/x",
			code:  avroerr.CodeOutOfRange,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := p.Encode(wire.NewWriter(nil), tc.value)
			assert.True(t, errors.Is(err, avroerr.ErrSerialization))
			it := issue(t, err)
			assert.Equal(t, tc.path, it.Path)
			assert.Equal(t, tc.code, it.Code)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	p := program(t, `["null", "int"]`)
	_, err := p.Decode(wire.NewReader([]byte{0x04}))
	assert.True(t, errors.Is(err, avroerr.ErrMalformedInput))
	assert.Equal(t, avroerr.CodeIndexOutOfRange, issue(t, err).Code)

	rec := program(t, sampleSchema)
	data := encode(t, rec, sampleValue("hi"))
	_, err = rec.Decode(wire.NewReader(data[:len(data)-1]))
	assert.True(t, errors.Is(err, avroerr.ErrTruncatedInput))
}

const listSchema = `{"type": "record", "name": "L", "fields": [{"name": "next", "type": ["null", "L"]}]}`

// chain encodes a list value nested n levels below the root.
func chain(n int) []byte {
	return append(bytes.Repeat([]byte{0x02}, n), 0x00)
}

func TestRecursionDepthLimit(t *testing.T) {
	p := program(t, listSchema)

	_, err := p.Decode(wire.NewReader(chain(100_000)))
	assert.True(t, errors.Is(err, avroerr.ErrMalformedInput))
	assert.Equal(t, avroerr.CodeDepthLimit, issue(t, err).Code)

	err = p.Skip(wire.NewReader(chain(100_000)))
	assert.True(t, errors.Is(err, avroerr.ErrMalformedInput))
	assert.Equal(t, avroerr.CodeDepthLimit, issue(t, err).Code)

	// the root record counts as one level
	_, err = p.Decode(wire.NewReader(chain(10)).WithOptions(wire.ReaderOptions{MaxDepth: 11}))
	require.NoError(t, err)
	_, err = p.Decode(wire.NewReader(chain(10)).WithOptions(wire.ReaderOptions{MaxDepth: 10}))
	assert.Equal(t, avroerr.CodeDepthLimit, issue(t, err).Code)
}

func TestEncodeCyclicValue(t *testing.T) {
	p := program(t, listSchema)
	v := map[string]any{}
	v["next"] = v
	err := p.Encode(wire.NewWriter(nil).WithMaxDepth(50), v)
	assert.True(t, errors.Is(err, avroerr.ErrSerialization))
	assert.Equal(t, avroerr.CodeDepthLimit, issue(t, err).Code)
}

func TestEncodeNilUnionPointer(t *testing.T) {
	p := program(t, `["null", "int"]`)
	err := p.Encode(wire.NewWriter(nil), (*gen.Union)(nil))
	assert.True(t, errors.Is(err, avroerr.ErrSerialization))
	assert.Equal(t, avroerr.CodeInvalidType, issue(t, err).Code)
}

func TestBlockCountLimits(t *testing.T) {
	nulls := program(t, `{"type": "array", "items": "null"}`)
	w := wire.NewWriter(nil)
	w.WriteBlockCount(20_000_000)
	huge := append(w.Bytes(), 0x00)

	_, err := nulls.Decode(wire.NewReader(huge))
	assert.True(t, errors.Is(err, avroerr.ErrMalformedInput))
	assert.Equal(t, avroerr.CodeItemLimit, issue(t, err).Code)
	err = nulls.Skip(wire.NewReader(huge))
	assert.Equal(t, avroerr.CodeItemLimit, issue(t, err).Code)

	got, err := nulls.Decode(wire.NewReader([]byte{0x06, 0x00}))
	require.NoError(t, err)
	assert.Equal(t, []any{nil, nil, nil}, got)

	longs := program(t, `{"type": "array", "items": "long"}`)
	// claims 1000 items with three bytes left
	_, err = longs.Decode(wire.NewReader([]byte{0xd0, 0x0f, 0x02, 0x02, 0x02}))
	assert.Equal(t, avroerr.CodeItemLimit, issue(t, err).Code)

	three := []byte{0x06, 0x02, 0x04, 0x06, 0x00}
	opts := wire.ReaderOptions{MaxItems: 2}
	_, err = longs.Decode(wire.NewStreamReader(bytes.NewReader(three)).WithOptions(opts))
	assert.Equal(t, avroerr.CodeItemLimit, issue(t, err).Code)
	// in-memory input bounds the count by its size instead
	got, err = longs.Decode(wire.NewReader(three).WithOptions(opts))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, got)

	empties := program(t, `{"type": "map", "values": {"type": "record", "name": "E", "fields": []}}`)
	w = wire.NewWriter(nil)
	w.WriteBlockCount(5_000_000)
	_, err = empties.Decode(wire.NewReader(append(w.Bytes(), 0x00)))
	assert.Equal(t, avroerr.CodeItemLimit, issue(t, err).Code)
}

func TestSkip(t *testing.T) {
	p := program(t, sampleSchema)
	data := append(encode(t, p, sampleValue("hi")), 0xff)
	r := wire.NewReader(data)
	require.NoError(t, p.Skip(r))
	assert.Equal(t, 1, r.Remaining())

	arr := program(t, `{"type": "array", "items": "string"}`)
	r = wire.NewReader([]byte{0x01, 0x04, 0x02, 'q', 0x00, 0x09})
	require.NoError(t, arr.Skip(r))
	assert.Equal(t, 1, r.Remaining())
}

func TestGenerateIsDeterministic(t *testing.T) {
	s := schema(t, sampleSchema)
	a := gen.Generate(s, gen.Options{})
	b := gen.Generate(s, gen.Options{})
	v := sampleValue("hi")
	assert.Equal(t, encode(t, a, v), encode(t, b, v))
	assert.Equal(t, a.Types(), b.Types())
	assert.Equal(t, []string{"test.Sample", "test.Kind", "test.Hash"}, a.Types())
}
