package wire_test

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/avrogen/avroerr"
	"github.com/reoring/avrogen/wire"
)

func TestIntVarint(t *testing.T) {
	cases := []struct {
		target   int32
		expected []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x01}},
		{1, []byte{0x02}},
		{-64, []byte{0x7f}},
		{63, []byte{0x7e}},
		{64, []byte{0x80, 0x01}},
		{8192, []byte{0x80, 0x80, 0x01}},
		{math.MaxInt32, []byte{0xfe, 0xff, 0xff, 0xff, 0x0f}},
		{math.MinInt32, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.target), func(t *testing.T) {
			w := wire.NewWriter(nil)
			w.WriteInt(tc.target)
			assert.Equal(t, tc.expected, w.Bytes())

			r := wire.NewReader(tc.expected)
			got, err := r.ReadInt()
			require.NoError(t, err)
			assert.Equal(t, tc.target, got)
			assert.Equal(t, 0, r.Remaining())
		})
	}
}

func TestLongVarint(t *testing.T) {
	cases := []struct {
		target   int64
		expected []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x01}},
		{64, []byte{0x80, 0x01}},
		{-65, []byte{0x81, 0x01}},
		{math.MaxInt64, []byte{0xfe, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}},
		{math.MinInt64, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.target), func(t *testing.T) {
			w := wire.NewWriter(nil)
			w.WriteLong(tc.target)
			assert.Equal(t, tc.expected, w.Bytes())

			got, err := wire.NewReader(tc.expected).ReadLong()
			require.NoError(t, err)
			assert.Equal(t, tc.target, got)
		})
	}
}

func TestVarintTruncated(t *testing.T) {
	_, err := wire.NewReader([]byte{0x80}).ReadInt()
	require.Error(t, err)
	assert.True(t, errors.Is(err, avroerr.ErrTruncatedInput), "got %v", err)

	_, err = wire.NewReader([]byte{0xff, 0xff}).ReadLong()
	assert.True(t, errors.Is(err, avroerr.ErrTruncatedInput), "got %v", err)

	_, err = wire.NewReader(nil).ReadLong()
	assert.True(t, errors.Is(err, avroerr.ErrTruncatedInput), "got %v", err)
}

func TestVarintOverflow(t *testing.T) {
	// Six bytes can never fit 32 bits.
	_, err := wire.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}).ReadInt()
	assert.True(t, errors.Is(err, avroerr.ErrOverflow), "got %v", err)

	// Fifth byte carrying bits above 32.
	_, err = wire.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x1f}).ReadInt()
	assert.True(t, errors.Is(err, avroerr.ErrOverflow), "got %v", err)

	// A long encoding is not an int.
	w := wire.NewWriter(nil)
	w.WriteLong(math.MaxInt32 + 1)
	_, err = wire.NewReader(w.Bytes()).ReadInt()
	assert.True(t, errors.Is(err, avroerr.ErrOverflow), "got %v", err)

	_, err = wire.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x03}).ReadLong()
	assert.True(t, errors.Is(err, avroerr.ErrOverflow), "got %v", err)

	_, err = wire.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x00}).ReadLong()
	assert.True(t, errors.Is(err, avroerr.ErrOverflow), "got %v", err)
}

func TestBoolean(t *testing.T) {
	w := wire.NewWriter(nil)
	w.WriteBoolean(true)
	w.WriteBoolean(false)
	assert.Equal(t, []byte{1, 0}, w.Bytes())

	r := wire.NewReader(w.Bytes())
	v, err := r.ReadBoolean()
	require.NoError(t, err)
	assert.True(t, v)
	v, err = r.ReadBoolean()
	require.NoError(t, err)
	assert.False(t, v)

	_, err = wire.NewReader([]byte{2}).ReadBoolean()
	assert.True(t, errors.Is(err, avroerr.ErrMalformedInput), "got %v", err)
	iss, ok := avroerr.AsIssues(err)
	require.True(t, ok)
	assert.Equal(t, avroerr.CodeInvalidBool, iss[0].Code)
	assert.Equal(t, int64(0), iss[0].Offset)
}

func TestFloatDouble(t *testing.T) {
	w := wire.NewWriter(nil)
	w.WriteFloat(1.5)
	w.WriteDouble(-2.25)
	assert.Equal(t, []byte{0, 0, 0xc0, 0x3f, 0, 0, 0, 0, 0, 0, 0x02, 0xc0}, w.Bytes())

	r := wire.NewReader(w.Bytes())
	f, err := r.ReadFloat()
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f)
	d, err := r.ReadDouble()
	require.NoError(t, err)
	assert.Equal(t, -2.25, d)

	_, err = wire.NewReader([]byte{1, 2, 3}).ReadFloat()
	assert.True(t, errors.Is(err, avroerr.ErrTruncatedInput), "got %v", err)
	_, err = wire.NewReader([]byte{1, 2, 3, 4, 5, 6, 7}).ReadDouble()
	assert.True(t, errors.Is(err, avroerr.ErrTruncatedInput), "got %v", err)
}

func TestBytesAndString(t *testing.T) {
	cases := []struct {
		target   string
		expected []byte
	}{
		{"hello world!", []byte{24, 104, 101, 108, 108, 111, 32, 119, 111, 114, 108, 100, 33}},
		{"", []byte{0}},
	}
	for _, tc := range cases {
		t.Run(tc.target, func(t *testing.T) {
			w := wire.NewWriter(nil)
			require.NoError(t, w.WriteString(tc.target))
			assert.Equal(t, tc.expected, w.Bytes())

			s, err := wire.NewReader(tc.expected).ReadString()
			require.NoError(t, err)
			assert.Equal(t, tc.target, s)

			w.Reset()
			w.WriteBytes([]byte(tc.target))
			assert.Equal(t, tc.expected, w.Bytes())
			b, err := wire.NewReader(tc.expected).ReadBytes()
			require.NoError(t, err)
			assert.Equal(t, []byte(tc.target), b)
		})
	}
}

func TestBytesCopiesInput(t *testing.T) {
	in := []byte{2, 'a'}
	b, err := wire.NewReader(in).ReadBytes()
	require.NoError(t, err)
	in[1] = 'z'
	assert.Equal(t, []byte("a"), b)
}

func TestBytesMalformed(t *testing.T) {
	_, err := wire.NewReader([]byte{0x01}).ReadBytes()
	assert.True(t, errors.Is(err, avroerr.ErrMalformedInput), "got %v", err)

	_, err = wire.NewReader([]byte{0x06, 'a'}).ReadString()
	assert.True(t, errors.Is(err, avroerr.ErrTruncatedInput), "got %v", err)

	_, err = wire.NewReader([]byte{0x08, 'a', 'b', 'c', 'd'}).WithOptions(wire.ReaderOptions{MaxBytes: 3}).ReadString()
	assert.True(t, errors.Is(err, avroerr.ErrMalformedInput), "got %v", err)
}

func TestStringUTF8(t *testing.T) {
	w := wire.NewWriter(nil)
	err := w.WriteString("\xff")
	assert.True(t, errors.Is(err, avroerr.ErrSerialization), "got %v", err)
	assert.Equal(t, 0, w.Len())

	invalid := []byte{0x02, 0xff}
	s, err := wire.NewReader(invalid).ReadString()
	require.NoError(t, err)
	assert.Equal(t, "\xff", s)

	_, err = wire.NewReader(invalid).WithOptions(wire.ReaderOptions{ValidateUTF8: true}).ReadString()
	assert.True(t, errors.Is(err, avroerr.ErrMalformedInput), "got %v", err)
}

func TestFixed(t *testing.T) {
	w := wire.NewWriter(nil)
	require.NoError(t, w.WriteFixed([]byte{1, 2, 3}, 3))
	assert.Equal(t, []byte{1, 2, 3}, w.Bytes())
	assert.Error(t, w.WriteFixed([]byte{1}, 3))

	got, err := wire.NewReader([]byte{1, 2, 3, 4}).ReadFixed(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestEnumAndUnionIndex(t *testing.T) {
	w := wire.NewWriter(nil)
	w.WriteEnum(2)
	w.WriteUnionIndex(1)
	assert.Equal(t, []byte{0x04, 0x02}, w.Bytes())

	r := wire.NewReader(w.Bytes())
	i, err := r.ReadEnum(3)
	require.NoError(t, err)
	assert.Equal(t, 2, i)
	_, err = r.ReadUnionIndex(1)
	assert.True(t, errors.Is(err, avroerr.ErrMalformedInput), "got %v", err)

	_, err = wire.NewReader([]byte{0x01}).ReadEnum(3)
	assert.True(t, errors.Is(err, avroerr.ErrMalformedInput), "got %v", err)
}

func TestBlockHeader(t *testing.T) {
	// count -2 with byte size 4, then terminator
	r := wire.NewReader([]byte{0x03, 0x08, 0x00})
	count, size, err := r.ReadBlockHeader()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, int64(4), size)
	count, size, err = r.ReadBlockHeader()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.Equal(t, int64(-1), size)
}

func TestCheckItems(t *testing.T) {
	r := wire.NewReader(make([]byte, 8))
	assert.NoError(t, r.CheckItems(0, 8, 1))
	assert.NoError(t, r.CheckItems(0, 2, 4))
	err := r.CheckItems(0, 3, 4)
	assert.True(t, errors.Is(err, avroerr.ErrMalformedInput))

	// zero-width items fall back to the item cap, counting earlier blocks
	r = wire.NewReader(nil).WithOptions(wire.ReaderOptions{MaxItems: 10})
	assert.NoError(t, r.CheckItems(4, 6, 0))
	err = r.CheckItems(5, 6, 0)
	var it avroerr.Issue
	require.True(t, errors.As(err, &it))
	assert.Equal(t, avroerr.CodeItemLimit, it.Code)

	s := wire.NewStreamReader(bytes.NewReader(nil))
	assert.NoError(t, s.CheckItems(0, wire.DefaultMaxItems, 8))
	assert.Error(t, s.CheckItems(0, wire.DefaultMaxItems+1, 8))
}

func TestDepthLimit(t *testing.T) {
	r := wire.NewReader(nil).WithOptions(wire.ReaderOptions{MaxDepth: 2})
	require.NoError(t, r.Enter())
	require.NoError(t, r.Enter())
	err := r.Enter()
	assert.True(t, errors.Is(err, avroerr.ErrMalformedInput))
	r.Leave()
	assert.NoError(t, r.Enter())

	w := wire.NewWriter(nil).WithMaxDepth(1)
	require.NoError(t, w.Enter())
	err = w.Enter()
	assert.True(t, errors.Is(err, avroerr.ErrSerialization))
	w.Leave()
	assert.NoError(t, w.Enter())
}

func TestDecimal(t *testing.T) {
	cases := []struct {
		text     string
		scale    int
		expected []byte
	}{
		{"0", 0, []byte{0x02, 0x00}},
		{"1.27", 2, []byte{0x02, 0x7f}},
		{"1.28", 2, []byte{0x04, 0x00, 0x80}},
		{"-1.28", 2, []byte{0x02, 0x80}},
		{"-1.29", 2, []byte{0x04, 0xff, 0x7f}},
		{"-0.01", 2, []byte{0x02, 0xff}},
		{"12.3", 2, []byte{0x04, 0x04, 0xce}},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			d, _, err := apd.NewFromString(tc.text)
			require.NoError(t, err)
			w := wire.NewWriter(nil)
			require.NoError(t, w.WriteDecimal(d, 10, tc.scale))
			assert.Equal(t, tc.expected, w.Bytes())

			got, err := wire.NewReader(w.Bytes()).ReadDecimal(tc.scale)
			require.NoError(t, err)
			assert.Equal(t, 0, got.Cmp(d), "got %s want %s", got, d)
			assert.Equal(t, int32(-tc.scale), got.Exponent)
		})
	}
}

func TestDecimalPrecision(t *testing.T) {
	d, _, _ := apd.NewFromString("1.234")
	err := wire.NewWriter(nil).WriteDecimal(d, 10, 2)
	assert.True(t, errors.Is(err, avroerr.ErrSerialization), "got %v", err)

	d, _, _ = apd.NewFromString("123.4")
	err = wire.NewWriter(nil).WriteDecimal(d, 3, 1)
	assert.True(t, errors.Is(err, avroerr.ErrSerialization), "got %v", err)

	// trailing zeros beyond the scale are fine
	d, _, _ = apd.NewFromString("1.200")
	require.NoError(t, wire.NewWriter(nil).WriteDecimal(d, 10, 2))

	// rejected before scaling the coefficient
	d, _, _ = apd.NewFromString("1E999999999")
	_, err = wire.DecimalUnscaled(d, 9, 2)
	assert.True(t, errors.Is(err, avroerr.ErrSerialization), "got %v", err)
	d, _, _ = apd.NewFromString("0E999999999")
	_, err = wire.DecimalUnscaled(d, 9, 2)
	require.NoError(t, err)
}

func TestDecimalFixed(t *testing.T) {
	d, _, _ := apd.NewFromString("-0.01")
	w := wire.NewWriter(nil)
	require.NoError(t, w.WriteDecimalFixed(d, 10, 2, 4))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, w.Bytes())
	got, err := wire.NewReader(w.Bytes()).ReadDecimalFixed(4, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(d))

	big1, _, _ := apd.NewFromString("100000")
	assert.Error(t, wire.NewWriter(nil).WriteDecimalFixed(big1, 10, 0, 2))
}

func TestTwosComplementRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 127, 128, -128, -129, 255, 256, -32768, math.MaxInt64, math.MinInt64} {
		c := big.NewInt(v)
		assert.Equal(t, 0, c.Cmp(wire.FromTwosComplement(wire.TwosComplement(c))), "value %d", v)
	}
}

func TestDateTime(t *testing.T) {
	w := wire.NewWriter(nil)
	day := time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, w.WriteDate(day))
	assert.Equal(t, []byte{0x02}, w.Bytes())

	w.Reset()
	before := time.Date(1969, 12, 31, 12, 0, 0, 0, time.UTC)
	require.NoError(t, w.WriteDate(before))
	assert.Equal(t, []byte{0x01}, w.Bytes())

	w.Reset()
	ts := time.Date(2021, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	w.WriteTimestampMillis(ts)
	require.NoError(t, w.WriteTimeMillis(90*time.Second))
	w.WriteTimestampMicros(ts)
	require.NoError(t, w.WriteTimeMicros(time.Hour))
	require.NoError(t, w.WriteDate(ts))

	r := wire.NewReader(w.Bytes())
	gotTs, err := r.ReadTimestampMillis()
	require.NoError(t, err)
	assert.True(t, ts.Equal(gotTs))
	gotTime, err := r.ReadTimeMillis()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, gotTime)
	gotTsMicros, err := r.ReadTimestampMicros()
	require.NoError(t, err)
	assert.True(t, ts.Equal(gotTsMicros))
	gotMicros, err := r.ReadTimeMicros()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, gotMicros)
	gotDay, err := r.ReadDate()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), gotDay)

	assert.Error(t, wire.NewWriter(nil).WriteTimeMillis(25*time.Hour))
}

func TestUUID(t *testing.T) {
	u := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	w := wire.NewWriter(nil)
	w.WriteUUID(u)
	assert.Equal(t, byte(72), w.Bytes()[0])
	got, err := wire.NewReader(w.Bytes()).ReadUUID()
	require.NoError(t, err)
	assert.Equal(t, u, got)

	w.Reset()
	require.NoError(t, w.WriteString("not-a-uuid"))
	_, err = wire.NewReader(w.Bytes()).ReadUUID()
	assert.True(t, errors.Is(err, avroerr.ErrMalformedInput), "got %v", err)
}

func TestStreamReaderConsumesExactly(t *testing.T) {
	w := wire.NewWriter(nil)
	w.WriteLong(300)
	require.NoError(t, w.WriteString("abc"))
	w.WriteBoolean(true)
	src := bytes.NewReader(append(w.Bytes(), 0xAA))

	r := wire.NewStreamReader(src)
	n, err := r.ReadLong()
	require.NoError(t, err)
	assert.Equal(t, int64(300), n)
	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "abc", s)
	b, err := r.ReadBoolean()
	require.NoError(t, err)
	assert.True(t, b)
	assert.Equal(t, int64(w.Len()), r.Offset())
	assert.Equal(t, 1, src.Len())

	_, err = wire.NewStreamReader(bytes.NewReader([]byte{0x80})).ReadLong()
	assert.True(t, errors.Is(err, avroerr.ErrTruncatedInput), "got %v", err)
}

func TestSkip(t *testing.T) {
	w := wire.NewWriter(nil)
	w.WriteBytes([]byte("skip me"))
	w.WriteLong(7)
	r := wire.NewReader(w.Bytes())
	require.NoError(t, r.SkipBytes())
	v, err := r.ReadLong()
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}
