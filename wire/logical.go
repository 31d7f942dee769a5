package wire

import (
	"math"
	"math/big"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/reoring/avrogen/avroerr"
)

const (
	_millisPerDay = int64(24 * time.Hour / time.Millisecond)
	_microsPerDay = int64(24 * time.Hour / time.Microsecond)
)

var _bigTen = big.NewInt(10)

// DecimalUnscaled returns the unscaled integer of d at the given scale,
// failing when d carries more fractional digits than scale allows or more
// digits than precision.
func DecimalUnscaled(d *apd.Decimal, precision, scale int) (*big.Int, error) {
	if d == nil || d.Form != apd.Finite {
		return nil, avroerr.Serializationf("/", avroerr.CodeOutOfRange, "decimal must be finite")
	}
	c := new(big.Int).Set(d.Coeff.MathBigInt())
	if d.Negative {
		c.Neg(c)
	}
	if c.Sign() == 0 {
		return c, nil
	}
	shift := int(d.Exponent) + scale
	if precision > 0 && shift > precision {
		return nil, avroerr.Serializationf("/", avroerr.CodePrecisionLoss, "decimal %s exceeds precision %d", d.String(), precision)
	}
	switch {
	case shift > 0:
		c.Mul(c, new(big.Int).Exp(_bigTen, big.NewInt(int64(shift)), nil))
	case shift < 0:
		m := new(big.Int).Exp(_bigTen, big.NewInt(int64(-shift)), nil)
		rem := new(big.Int)
		c.QuoRem(c, m, rem)
		if rem.Sign() != 0 {
			return nil, avroerr.Serializationf("/", avroerr.CodePrecisionLoss, "decimal %s has more than %d fractional digits", d.String(), scale)
		}
	}
	if precision > 0 && digits(c) > precision {
		return nil, avroerr.Serializationf("/", avroerr.CodePrecisionLoss, "decimal %s exceeds precision %d", d.String(), precision)
	}
	return c, nil
}

func digits(c *big.Int) int {
	if c.Sign() == 0 {
		return 1
	}
	s := c.String()
	if s[0] == '-' {
		return len(s) - 1
	}
	return len(s)
}

// TwosComplement returns the minimal big-endian two's-complement encoding of c.
func TwosComplement(c *big.Int) []byte {
	switch c.Sign() {
	case 0:
		return []byte{0}
	case 1:
		b := c.Bytes()
		if b[0]&0x80 != 0 {
			b = append([]byte{0}, b...)
		}
		return b
	default:
		// -c-1 has the same bits as c, inverted.
		m := new(big.Int).Neg(c)
		m.Sub(m, big.NewInt(1))
		b := m.Bytes()
		for i := range b {
			b[i] = ^b[i]
		}
		if len(b) == 0 || b[0]&0x80 == 0 {
			b = append([]byte{0xff}, b...)
		}
		return b
	}
}

// FromTwosComplement decodes a big-endian two's-complement integer.
func FromTwosComplement(b []byte) *big.Int {
	c := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		c.Sub(c, new(big.Int).Lsh(big.NewInt(1), uint(8*len(b))))
	}
	return c
}

// WriteDecimal encodes d as bytes holding the two's-complement unscaled value.
func (w *Writer) WriteDecimal(d *apd.Decimal, precision, scale int) error {
	c, err := DecimalUnscaled(d, precision, scale)
	if err != nil {
		return err
	}
	w.WriteBytes(TwosComplement(c))
	return nil
}

// WriteDecimalFixed encodes d into a fixed of size bytes, sign-extended.
func (w *Writer) WriteDecimalFixed(d *apd.Decimal, precision, scale, size int) error {
	c, err := DecimalUnscaled(d, precision, scale)
	if err != nil {
		return err
	}
	b := TwosComplement(c)
	if len(b) > size {
		return avroerr.Serializationf("/", avroerr.CodeOutOfRange, "decimal %s does not fit in %d bytes", d.String(), size)
	}
	pad := byte(0)
	if c.Sign() < 0 {
		pad = 0xff
	}
	for i := len(b); i < size; i++ {
		w.buf = append(w.buf, pad)
	}
	w.buf = append(w.buf, b...)
	return nil
}

func decimalFrom(b []byte, scale int) *apd.Decimal {
	c := FromTwosComplement(b)
	d := new(apd.Decimal)
	d.Exponent = int32(-scale)
	if c.Sign() < 0 {
		d.Negative = true
		c.Neg(c)
	}
	d.Coeff.SetMathBigInt(c)
	return d
}

// ReadDecimal decodes a bytes-backed decimal with the given scale.
func (r *Reader) ReadDecimal(scale int) (*apd.Decimal, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	return decimalFrom(b, scale), nil
}

// ReadDecimalFixed decodes a fixed-backed decimal with the given scale.
func (r *Reader) ReadDecimalFixed(size, scale int) (*apd.Decimal, error) {
	b, err := r.readN(int64(size))
	if err != nil {
		return nil, err
	}
	return decimalFrom(b, scale), nil
}

// WriteDate encodes the calendar day of t (in UTC) as days since 1970-01-01.
func (w *Writer) WriteDate(t time.Time) error {
	ms := t.UnixMilli()
	days := ms / _millisPerDay
	if ms%_millisPerDay < 0 {
		days--
	}
	if days < math.MinInt32 || days > math.MaxInt32 {
		return avroerr.Serializationf("/", avroerr.CodeOutOfRange, "date %s out of range", t.Format(time.DateOnly))
	}
	w.WriteInt(int32(days))
	return nil
}

// ReadDate decodes days since epoch into a UTC midnight.
func (r *Reader) ReadDate() (time.Time, error) {
	days, err := r.ReadInt()
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(days) * _millisPerDay).UTC(), nil
}

// WriteTimeMillis encodes a time of day as milliseconds since midnight.
func (w *Writer) WriteTimeMillis(d time.Duration) error {
	ms := d.Milliseconds()
	if ms < 0 || ms >= _millisPerDay {
		return avroerr.Serializationf("/", avroerr.CodeOutOfRange, "time-millis %s outside a day", d)
	}
	w.WriteInt(int32(ms))
	return nil
}

// ReadTimeMillis decodes milliseconds since midnight.
func (r *Reader) ReadTimeMillis() (time.Duration, error) {
	ms, err := r.ReadInt()
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// WriteTimeMicros encodes a time of day as microseconds since midnight.
func (w *Writer) WriteTimeMicros(d time.Duration) error {
	us := d.Microseconds()
	if us < 0 || us >= _microsPerDay {
		return avroerr.Serializationf("/", avroerr.CodeOutOfRange, "time-micros %s outside a day", d)
	}
	w.WriteLong(us)
	return nil
}

// ReadTimeMicros decodes microseconds since midnight.
func (r *Reader) ReadTimeMicros() (time.Duration, error) {
	us, err := r.ReadLong()
	if err != nil {
		return 0, err
	}
	return time.Duration(us) * time.Microsecond, nil
}

// WriteTimestampMillis encodes milliseconds since the Unix epoch.
func (w *Writer) WriteTimestampMillis(t time.Time) { w.WriteLong(t.UnixMilli()) }

// ReadTimestampMillis decodes milliseconds since the Unix epoch into UTC.
func (r *Reader) ReadTimestampMillis() (time.Time, error) {
	ms, err := r.ReadLong()
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

// WriteTimestampMicros encodes microseconds since the Unix epoch.
func (w *Writer) WriteTimestampMicros(t time.Time) { w.WriteLong(t.UnixMicro()) }

// ReadTimestampMicros decodes microseconds since the Unix epoch into UTC.
func (r *Reader) ReadTimestampMicros() (time.Time, error) {
	us, err := r.ReadLong()
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(us).UTC(), nil
}

// WriteUUID encodes u as a string in canonical hyphenated form.
func (w *Writer) WriteUUID(u uuid.UUID) {
	s := u.String()
	w.WriteLong(int64(len(s)))
	w.buf = append(w.buf, s...)
}

// ReadUUID decodes a string and parses it as a UUID.
func (r *Reader) ReadUUID() (uuid.UUID, error) {
	start := r.Offset()
	s, err := r.ReadString()
	if err != nil {
		return uuid.UUID{}, err
	}
	u, err := uuid.Parse(s)
	if err != nil {
		it := avroerr.Malformedf(start, avroerr.CodeInvalidFormat, "invalid uuid %q", s)
		it.Cause = err
		return uuid.UUID{}, it
	}
	return u, nil
}
