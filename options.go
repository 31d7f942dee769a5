package avrogen

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/reoring/avrogen/internal/gen"
	"github.com/reoring/avrogen/wire"
)

// Options controls a Registry. The zero value is usable.
type Options struct {
	// Logger receives compile and discovery events. Defaults to a no-op logger.
	Logger *zap.Logger
	// Concurrency bounds parallel compilation. Zero selects GOMAXPROCS.
	Concurrency int
	// TaggedUnions makes deserialize return Union values instead of bare
	// branch payloads.
	TaggedUnions bool
	// ValidateUTF8 makes deserialize reject strings that are not valid UTF-8.
	ValidateUTF8 bool
	// MaxBlockBytes bounds a single bytes or string length prefix read from a
	// stream. Zero selects wire.DefaultMaxBytes.
	MaxBlockBytes int64
	// MaxDepth bounds how deeply recursive named types may nest in one value,
	// when encoding and decoding. Zero selects wire.DefaultMaxDepth.
	MaxDepth int
	// MaxItems bounds the elements of one decoded array or map when the input
	// size cannot bound it: stream input, or elements that occupy no bytes.
	// Zero selects wire.DefaultMaxItems.
	MaxItems int64
	// OrderedMaps makes deserialize return maps as MapEntries in wire order,
	// so a decoded value re-encodes to the same bytes.
	OrderedMaps bool
	// NamedTypes are raw schema documents whose named types every compiled
	// schema may reference by full name.
	NamedTypes []any
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.GOMAXPROCS(0)
	}
	if o.MaxBlockBytes <= 0 {
		o.MaxBlockBytes = wire.DefaultMaxBytes
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = wire.DefaultMaxDepth
	}
	if o.MaxItems <= 0 {
		o.MaxItems = wire.DefaultMaxItems
	}
	return o
}

func (o Options) readerOptions() wire.ReaderOptions {
	return wire.ReaderOptions{
		ValidateUTF8: o.ValidateUTF8,
		MaxBytes:     o.MaxBlockBytes,
		MaxDepth:     o.MaxDepth,
		MaxItems:     o.MaxItems,
	}
}

func (o Options) genOptions() gen.Options {
	return gen.Options{TaggedUnions: o.TaggedUnions, OrderedMaps: o.OrderedMaps}
}
