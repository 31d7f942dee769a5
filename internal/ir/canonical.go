package ir

import (
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Canonical renders the Parsing Canonical Form of the schema rooted at n:
// full names, no docs, aliases, defaults or logical annotations, a fixed
// attribute order, and each named type spelled out only at its first
// occurrence.
func (n *Node) Canonical() string {
	b := &strings.Builder{}
	writeCanonical(b, n, make(map[string]bool))
	return b.String()
}

func writeCanonical(b *strings.Builder, n *Node, seen map[string]bool) {
	n = n.Resolve()
	if n.IsNamed() {
		if seen[n.Name] {
			writeString(b, n.Name)
			return
		}
		seen[n.Name] = true
	}
	switch n.Kind {
	case Record:
		b.WriteString(`{"name":`)
		writeString(b, n.Name)
		b.WriteString(`,"type":"record","fields":[`)
		for i, f := range n.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(`{"name":`)
			writeString(b, f.Name)
			b.WriteString(`,"type":`)
			writeCanonical(b, f.Type, seen)
			b.WriteByte('}')
		}
		b.WriteString("]}")
	case Enum:
		b.WriteString(`{"name":`)
		writeString(b, n.Name)
		b.WriteString(`,"type":"enum","symbols":[`)
		for i, s := range n.Symbols {
			if i > 0 {
				b.WriteByte(',')
			}
			writeString(b, s)
		}
		b.WriteString("]}")
	case Fixed:
		b.WriteString(`{"name":`)
		writeString(b, n.Name)
		b.WriteString(`,"type":"fixed","size":`)
		b.WriteString(strconv.Itoa(n.Size))
		b.WriteByte('}')
	case Array:
		b.WriteString(`{"type":"array","items":`)
		writeCanonical(b, n.Items, seen)
		b.WriteByte('}')
	case Map:
		b.WriteString(`{"type":"map","values":`)
		writeCanonical(b, n.Values, seen)
		b.WriteByte('}')
	case Union:
		b.WriteByte('[')
		for i, br := range n.Branches {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, br, seen)
		}
		b.WriteByte(']')
	default:
		writeString(b, n.Kind.String())
	}
}

func writeString(b *strings.Builder, s string) {
	q, err := json.MarshalNoEscape(s)
	if err != nil {
		b.WriteString(strconv.Quote(s))
		return
	}
	b.Write(q)
}

const _crc64Empty uint64 = 0xc15d213aa4d7a795

var _crc64Table = func() (t [256]uint64) {
	for i := range t {
		fp := uint64(i)
		for j := 0; j < 8; j++ {
			fp = (fp >> 1) ^ (_crc64Empty & -(fp & 1))
		}
		t[i] = fp
	}
	return t
}()

// Fingerprint64 returns the CRC-64-AVRO (Rabin) fingerprint of the
// canonical form.
func (n *Node) Fingerprint64() uint64 {
	fp := _crc64Empty
	for _, c := range []byte(n.Canonical()) {
		fp = (fp >> 8) ^ _crc64Table[byte(fp)^c]
	}
	return fp
}
