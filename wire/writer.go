package wire

import (
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"

	"github.com/reoring/avrogen/avroerr"
)

// Writer is an append-only byte sink. It grows as needed and is not safe for
// concurrent use; each encode call owns its Writer for the call's duration.
type Writer struct {
	buf      []byte
	depth    int
	maxDepth int
}

// NewWriter returns a Writer appending to buf[:0], reusing its capacity.
func NewWriter(buf []byte) *Writer { return &Writer{buf: buf[:0]} }

// WithMaxDepth bounds named-type nesting while encoding. Zero selects
// DefaultMaxDepth.
func (w *Writer) WithMaxDepth(n int) *Writer {
	w.maxDepth = n
	return w
}

// Enter records one more level of named-type nesting and fails once the
// depth limit is reached, which also stops values that contain themselves.
// Every successful Enter is paired with Leave.
func (w *Writer) Enter() error {
	max := w.maxDepth
	if max <= 0 {
		max = DefaultMaxDepth
	}
	if w.depth >= max {
		return avroerr.Serializationf("/", avroerr.CodeDepthLimit, "value nests deeper than %d named types", max)
	}
	w.depth++
	return nil
}

// Leave undoes one Enter.
func (w *Writer) Leave() { w.depth-- }

// Bytes returns the bytes written so far. The slice aliases the internal
// buffer until the next write or Reset.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Reset discards the written bytes while keeping the capacity.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// Truncate discards everything written after the first n bytes.
func (w *Writer) Truncate(n int) {
	if n >= 0 && n < len(w.buf) {
		w.buf = w.buf[:n]
	}
}

// WriteTo flushes the written bytes to dst.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	n, err := dst.Write(w.buf)
	return int64(n), err
}

// Write implements io.Writer by appending raw bytes.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// WriteNull encodes null, which is zero bytes.
func (w *Writer) WriteNull() {}

// WriteBoolean encodes a boolean as one byte.
func (w *Writer) WriteBoolean(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// WriteInt encodes a 32-bit integer as a zig-zag varint.
func (w *Writer) WriteInt(v int32) {
	w.writeVarint(uint64(uint32((v << 1) ^ (v >> 31))))
}

// WriteLong encodes a 64-bit integer as a zig-zag varint.
func (w *Writer) WriteLong(v int64) {
	w.writeVarint(uint64((v << 1) ^ (v >> 63)))
}

func (w *Writer) writeVarint(u uint64) {
	for u >= 0x80 {
		w.buf = append(w.buf, byte(u)|0x80)
		u >>= 7
	}
	w.buf = append(w.buf, byte(u))
}

// WriteFloat encodes a float as 4 little-endian IEEE-754 bytes.
func (w *Writer) WriteFloat(v float32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
}

// WriteDouble encodes a double as 8 little-endian IEEE-754 bytes.
func (w *Writer) WriteDouble(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

// WriteBytes encodes a long length followed by the raw bytes.
func (w *Writer) WriteBytes(v []byte) {
	w.WriteLong(int64(len(v)))
	w.buf = append(w.buf, v...)
}

// WriteString encodes a string like bytes. The content must be valid UTF-8.
func (w *Writer) WriteString(v string) error {
	if !utf8.ValidString(v) {
		return avroerr.Serializationf("/", avroerr.CodeInvalidUTF8, "string is not valid UTF-8")
	}
	w.WriteLong(int64(len(v)))
	w.buf = append(w.buf, v...)
	return nil
}

// WriteFixed encodes exactly size raw bytes with no length prefix.
func (w *Writer) WriteFixed(v []byte, size int) error {
	if len(v) != size {
		return avroerr.Serializationf("/", avroerr.CodeInvalidSize, "fixed expects %d bytes, got %d", size, len(v))
	}
	w.buf = append(w.buf, v...)
	return nil
}

// WriteEnum encodes the zero-based symbol index.
func (w *Writer) WriteEnum(index int) { w.WriteInt(int32(index)) }

// WriteUnionIndex encodes the zero-based branch index of a union.
func (w *Writer) WriteUnionIndex(index int) { w.WriteLong(int64(index)) }

// WriteBlockCount starts an array or map block of n items. Counts are always
// positive; WriteBlockCount(0) terminates the array or map.
func (w *Writer) WriteBlockCount(n int) { w.WriteLong(int64(n)) }
