package wire

import (
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"github.com/reoring/avrogen/avroerr"
)

const (
	// DefaultMaxBytes bounds a single length prefix when reading from a
	// stream, so a corrupt length cannot force an arbitrarily large allocation.
	DefaultMaxBytes = 64 << 20
	// DefaultMaxDepth bounds how deeply recursive named types may nest.
	DefaultMaxDepth = 1000
	// DefaultMaxItems bounds the element count of one array or map whose
	// size the remaining input cannot vouch for.
	DefaultMaxItems = 1 << 20
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// ValidateUTF8 makes ReadString reject invalid UTF-8.
	ValidateUTF8 bool
	// MaxBytes bounds a single bytes/string length prefix. Zero selects
	// DefaultMaxBytes for stream readers and the remaining input for
	// in-memory readers.
	MaxBytes int64
	// MaxDepth bounds named-type nesting. Zero selects DefaultMaxDepth.
	MaxDepth int
	// MaxItems bounds the elements of one array or map read from a stream,
	// or made of elements that occupy no bytes. Zero selects DefaultMaxItems.
	MaxItems int64
}

// Reader is a sequential byte source, positionable only forward. It reads
// either from an in-memory slice or from an io.Reader without buffering
// beyond the bytes of the value being decoded.
type Reader struct {
	data []byte
	pos  int

	src  io.Reader
	bsrc io.ByteReader
	off  int64

	opts  ReaderOptions
	depth int
	one   [1]byte
}

// NewReader returns a Reader over an in-memory slice.
func NewReader(data []byte) *Reader { return &Reader{data: data} }

// NewStreamReader returns a Reader pulling bytes from r on demand.
func NewStreamReader(r io.Reader) *Reader {
	rd := &Reader{src: r}
	if br, ok := r.(io.ByteReader); ok {
		rd.bsrc = br
	}
	return rd
}

// WithOptions sets the reader options and returns the reader.
func (r *Reader) WithOptions(opts ReaderOptions) *Reader {
	r.opts = opts
	return r
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 {
	if r.src != nil {
		return r.off
	}
	return int64(r.pos)
}

// Remaining returns the unread byte count of an in-memory reader, or -1 for a
// stream reader.
func (r *Reader) Remaining() int {
	if r.src != nil {
		return -1
	}
	return len(r.data) - r.pos
}

func (r *Reader) readByte() (byte, error) {
	if r.src == nil {
		if r.pos >= len(r.data) {
			return 0, avroerr.Truncated(int64(r.pos), nil)
		}
		b := r.data[r.pos]
		r.pos++
		return b, nil
	}
	var b byte
	var err error
	if r.bsrc != nil {
		b, err = r.bsrc.ReadByte()
	} else {
		_, err = io.ReadFull(r.src, r.one[:])
		b = r.one[0]
	}
	if err != nil {
		return 0, r.streamErr(err)
	}
	r.off++
	return b, nil
}

func (r *Reader) streamErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return avroerr.Truncated(r.off, err)
	}
	return errors.Wrapf(err, "wire: reading at offset %d", r.off)
}

// readN returns the next n bytes. In-memory readers return a sub-slice of the
// input; callers copy when the result escapes.
func (r *Reader) readN(n int64) ([]byte, error) {
	if r.src == nil {
		if n > int64(len(r.data)-r.pos) {
			r.pos = len(r.data)
			return nil, avroerr.Truncated(int64(r.pos), nil)
		}
		out := r.data[r.pos : r.pos+int(n)]
		r.pos += int(n)
		return out, nil
	}
	out := make([]byte, n)
	m, err := io.ReadFull(r.src, out)
	r.off += int64(m)
	if err != nil {
		return nil, r.streamErr(err)
	}
	return out, nil
}

func (r *Reader) skipN(n int64) error {
	if r.src == nil {
		if n > int64(len(r.data)-r.pos) {
			r.pos = len(r.data)
			return avroerr.Truncated(int64(r.pos), nil)
		}
		r.pos += int(n)
		return nil
	}
	m, err := io.CopyN(io.Discard, r.src, n)
	r.off += m
	if err != nil {
		return r.streamErr(err)
	}
	return nil
}

// ReadNull decodes null, consuming nothing.
func (r *Reader) ReadNull() (any, error) { return nil, nil }

// ReadBoolean decodes one byte; anything other than 0 or 1 is malformed.
func (r *Reader) ReadBoolean() (bool, error) {
	b, err := r.readByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, avroerr.Malformedf(r.Offset()-1, avroerr.CodeInvalidBool, "invalid boolean byte %#02x", b)
	}
}

// ReadInt decodes a zig-zag varint into 32 bits.
func (r *Reader) ReadInt() (int32, error) {
	start := r.Offset()
	var u uint32
	var shift uint
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		if shift == 28 && b&0x70 != 0 {
			return 0, avroerr.Overflow(start, 32)
		}
		u |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift > 28 {
			return 0, avroerr.Overflow(start, 32)
		}
	}
	return int32(u>>1) ^ -int32(u&1), nil
}

// ReadLong decodes a zig-zag varint into 64 bits.
func (r *Reader) ReadLong() (int64, error) {
	start := r.Offset()
	var u uint64
	var shift uint
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		if shift == 63 && b&0x7e != 0 {
			return 0, avroerr.Overflow(start, 64)
		}
		u |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift > 63 {
			return 0, avroerr.Overflow(start, 64)
		}
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

// ReadFloat decodes 4 little-endian bytes.
func (r *Reader) ReadFloat() (float32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// ReadDouble decodes 8 little-endian bytes.
func (r *Reader) ReadDouble() (float64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

func (r *Reader) readLength() (int64, error) {
	start := r.Offset()
	n, err := r.ReadLong()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, avroerr.Malformedf(start, avroerr.CodeNegativeLength, "negative length %d", n)
	}
	limit := r.opts.MaxBytes
	if limit == 0 && r.src != nil {
		limit = DefaultMaxBytes
	}
	if limit > 0 && n > limit {
		return 0, avroerr.Malformedf(start, avroerr.CodeLengthLimit, "length %d exceeds limit %d", n, limit)
	}
	return n, nil
}

// ReadBytes decodes a length-prefixed byte sequence. The result is a copy.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.readLength()
	if err != nil {
		return nil, err
	}
	b, err := r.readN(n)
	if err != nil {
		return nil, err
	}
	if r.src == nil {
		return append([]byte(nil), b...), nil
	}
	return b, nil
}

// ReadString decodes a length-prefixed string. Content is passed through
// unless ValidateUTF8 is set.
func (r *Reader) ReadString() (string, error) {
	n, err := r.readLength()
	if err != nil {
		return "", err
	}
	start := r.Offset()
	b, err := r.readN(n)
	if err != nil {
		return "", err
	}
	if r.opts.ValidateUTF8 && !utf8.Valid(b) {
		return "", avroerr.Malformedf(start, avroerr.CodeInvalidUTF8, "string is not valid UTF-8")
	}
	return string(b), nil
}

// ReadFixed decodes exactly size raw bytes. The result is a copy.
func (r *Reader) ReadFixed(size int) ([]byte, error) {
	b, err := r.readN(int64(size))
	if err != nil {
		return nil, err
	}
	if r.src == nil {
		return append([]byte(nil), b...), nil
	}
	return b, nil
}

// ReadEnum decodes a symbol index and checks it against the symbol count.
func (r *Reader) ReadEnum(symbols int) (int, error) {
	start := r.Offset()
	i, err := r.ReadInt()
	if err != nil {
		return 0, err
	}
	if i < 0 || int(i) >= symbols {
		return 0, avroerr.Malformedf(start, avroerr.CodeIndexOutOfRange, "enum index %d out of range [0,%d)", i, symbols)
	}
	return int(i), nil
}

// ReadUnionIndex decodes a branch index and checks it against the branch count.
func (r *Reader) ReadUnionIndex(branches int) (int, error) {
	start := r.Offset()
	i, err := r.ReadLong()
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= int64(branches) {
		return 0, avroerr.Malformedf(start, avroerr.CodeIndexOutOfRange, "union index %d out of range [0,%d)", i, branches)
	}
	return int(i), nil
}

// ReadBlockHeader decodes an array or map block header. A negative count is
// followed by the block byte size, returned as size; otherwise size is -1.
// A zero count terminates the sequence.
func (r *Reader) ReadBlockHeader() (count, size int64, err error) {
	start := r.Offset()
	count, err = r.ReadLong()
	if err != nil {
		return 0, 0, err
	}
	if count >= 0 {
		return count, -1, nil
	}
	if count == math.MinInt64 {
		return 0, 0, avroerr.Malformedf(start, avroerr.CodeOutOfRange, "block count out of range")
	}
	count = -count
	size, err = r.ReadLong()
	if err != nil {
		return 0, 0, err
	}
	if size < 0 {
		return 0, 0, avroerr.Malformedf(start, avroerr.CodeNegativeLength, "negative block size %d", size)
	}
	return count, size, nil
}

// CheckItems validates a block of count elements following seen elements of
// the same array or map, each at least width bytes on the wire. In-memory
// input must hold the whole block; otherwise the collection is capped at
// MaxItems.
func (r *Reader) CheckItems(seen, count, width int64) error {
	if width > 0 && r.src == nil {
		if rem := int64(r.Remaining()); count > rem/width {
			return avroerr.Malformedf(r.Offset(), avroerr.CodeItemLimit, "block of %d items cannot fit in %d remaining bytes", count, rem)
		}
		return nil
	}
	max := r.opts.MaxItems
	if max <= 0 {
		max = DefaultMaxItems
	}
	if count > max-seen {
		return avroerr.Malformedf(r.Offset(), avroerr.CodeItemLimit, "collection exceeds %d items", max)
	}
	return nil
}

// Enter records one more level of named-type nesting and fails once
// MaxDepth is reached. Every successful Enter is paired with Leave.
func (r *Reader) Enter() error {
	max := r.opts.MaxDepth
	if max <= 0 {
		max = DefaultMaxDepth
	}
	if r.depth >= max {
		return avroerr.Malformedf(r.Offset(), avroerr.CodeDepthLimit, "value nests deeper than %d named types", max)
	}
	r.depth++
	return nil
}

// Leave undoes one Enter.
func (r *Reader) Leave() { r.depth-- }

// ReadBlockCount decodes a block header, discarding any byte size.
func (r *Reader) ReadBlockCount() (int64, error) {
	n, _, err := r.ReadBlockHeader()
	return n, err
}

// Skip discards n bytes.
func (r *Reader) Skip(n int64) error { return r.skipN(n) }

// SkipBytes discards a length-prefixed bytes or string value.
func (r *Reader) SkipBytes() error {
	n, err := r.readLength()
	if err != nil {
		return err
	}
	return r.skipN(n)
}

// SkipLong discards a varint of either width.
func (r *Reader) SkipLong() error {
	_, err := r.ReadLong()
	return err
}
