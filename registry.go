package avrogen

import (
	"context"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reoring/avrogen/avroerr"
	"github.com/reoring/avrogen/internal/gen"
	"github.com/reoring/avrogen/internal/ir"
	"github.com/reoring/avrogen/wire"
)

// Registry compiles schemas and owns the resulting routine pairs. Each
// Registry has its own cache; instances never share state.
type Registry struct {
	opts  Options
	log   *zap.Logger
	named []*ir.Node

	mu       sync.RWMutex
	compiled map[ID]*Compiled
	failures map[ID]error
}

// New returns an empty Registry. It fails when one of opts.NamedTypes is not
// a valid schema.
func New(opts Options) (*Registry, error) {
	opts = opts.withDefaults()
	r := &Registry{
		opts:     opts,
		log:      opts.Logger,
		compiled: make(map[ID]*Compiled),
		failures: make(map[ID]error),
	}
	for i, raw := range opts.NamedTypes {
		s, err := ir.Build(raw, ir.Options{External: r.named})
		if err != nil {
			return nil, errors.Wrapf(err, "avrogen: named types document %d", i)
		}
		r.named = append(r.named, s.Types...)
	}
	return r, nil
}

// Discover enumerates src and compiles every document it yields. Schema
// errors are recorded per identifier (see Failures) and do not stop the
// other documents; the returned error reports only enumeration failures and
// cancellation.
func (r *Registry) Discover(ctx context.Context, src Source) ([]Document, error) {
	docs, err := src.Documents(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "avrogen: discovering schemas")
	}
	r.log.Info("discovered schemas", zap.Int("count", len(docs)))
	if err := r.CompileAll(ctx, docs); err != nil {
		return nil, err
	}
	return docs, nil
}

type compileResult struct {
	compiled *Compiled
	err      error
}

// CompileAll compiles docs in parallel. A document referencing named types
// declared by another document is retried once that document has compiled,
// so documents may depend on each other in any order.
func (r *Registry) CompileAll(ctx context.Context, docs []Document) error {
	var pending []Document
	for _, d := range docs {
		if d.Err != nil {
			r.fail(d.ID, errors.Mark(d.Err, ErrSchema))
			continue
		}
		pending = append(pending, d)
	}
	for round := 1; len(pending) > 0; round++ {
		external := r.externalTypes()
		results := make([]compileResult, len(pending))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.opts.Concurrency)
		for i := range pending {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i].compiled, results[i].err = r.build(pending[i].ID, pending[i].Schema, external)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return errors.Wrap(err, "avrogen: compilation interrupted")
		}

		var (
			retry    []Document
			retryErr []error
		)
		progress := false
		for i, res := range results {
			switch {
			case res.err == nil:
				r.publish(res.compiled)
				progress = true
			case onlyUnresolved(res.err):
				retry = append(retry, pending[i])
				retryErr = append(retryErr, res.err)
			default:
				r.fail(pending[i].ID, res.err)
			}
		}
		if !progress {
			for i, d := range retry {
				r.fail(d.ID, retryErr[i])
			}
			break
		}
		r.log.Debug("compile round finished", zap.Int("round", round), zap.Int("retry", len(retry)))
		pending = retry
	}
	r.mu.RLock()
	ok, failed := len(r.compiled), len(r.failures)
	r.mu.RUnlock()
	r.log.Info("schemas compiled", zap.Int("compiled", ok), zap.Int("failed", failed))
	return nil
}

// Compile builds and publishes the routine pair for one schema document. A
// failure is recorded against id and leaves any previously published pair
// in place.
func (r *Registry) Compile(id ID, doc any) (*Compiled, error) {
	c, err := r.build(id, doc, r.externalTypes())
	if err != nil {
		r.fail(id, err)
		return nil, err
	}
	r.publish(c)
	return c, nil
}

func (r *Registry) build(id ID, doc any, external []*ir.Node) (*Compiled, error) {
	r.log.Debug("compiling schema", zap.Stringer("id", id))
	s, err := ir.Build(doc, ir.Options{External: external})
	if err != nil {
		return nil, err
	}
	return &Compiled{
		ID:          id,
		Fingerprint: s.Root.Fingerprint64(),
		Canonical:   s.Root.Canonical(),
		schema:      s,
		program:     gen.Generate(s.Root, r.opts.genOptions()),
	}, nil
}

// publish atomically inserts or replaces the pair for its identifier.
func (r *Registry) publish(c *Compiled) {
	r.mu.Lock()
	r.compiled[c.ID] = c
	delete(r.failures, c.ID)
	r.mu.Unlock()
	r.log.Debug("schema compiled",
		zap.Stringer("id", c.ID),
		zap.String("fingerprint", fingerprintHex(c.Fingerprint)),
		zap.Strings("types", c.Types()))
}

func (r *Registry) fail(id ID, err error) {
	r.mu.Lock()
	r.failures[id] = err
	r.mu.Unlock()
	r.log.Warn("schema compilation failed", zap.Stringer("id", id), zap.Error(err))
}

// externalTypes snapshots the named types visible to new compilations:
// Options.NamedTypes first, then those of compiled schemas in identifier
// order. The first declaration of a name wins.
func (r *Registry) externalTypes() []*ir.Node {
	r.mu.RLock()
	ids := make([]ID, 0, len(r.compiled))
	for id := range r.compiled {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareIDs)
	out := append([]*ir.Node(nil), r.named...)
	seen := make(map[string]bool, len(out))
	for _, n := range out {
		seen[n.Name] = true
	}
	for _, id := range ids {
		for _, n := range r.compiled[id].schema.Types {
			if !seen[n.Name] {
				seen[n.Name] = true
				out = append(out, n)
			}
		}
	}
	r.mu.RUnlock()
	return out
}

func compareIDs(a, b ID) int {
	switch {
	case a.less(b):
		return -1
	case b.less(a):
		return 1
	}
	return 0
}

func onlyUnresolved(err error) bool {
	iss, ok := avroerr.AsIssues(err)
	if !ok || len(iss) == 0 {
		return false
	}
	for _, it := range iss {
		if it.Code != avroerr.CodeUnresolvedName {
			return false
		}
	}
	return true
}

// Get returns the published pair for id, or an error matching
// ErrUnknownSchema.
func (r *Registry) Get(id ID) (*Compiled, error) {
	r.mu.RLock()
	c, ok := r.compiled[id]
	cause := r.failures[id]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}
	if cause != nil {
		return nil, errors.Mark(errors.Wrapf(cause, "avrogen: schema %s failed to compile", id), ErrUnknownSchema)
	}
	return nil, errors.Mark(errors.Newf("avrogen: no schema %s", id), ErrUnknownSchema)
}

// Serialize encodes v with the schema registered under id.
func (r *Registry) Serialize(id ID, v any, w *wire.Writer) error {
	c, err := r.Get(id)
	if err != nil {
		return err
	}
	return c.Serialize(v, w)
}

// Deserialize decodes one value with the schema registered under id.
func (r *Registry) Deserialize(id ID, rd *wire.Reader) (any, error) {
	c, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return c.Deserialize(rd)
}

// Marshal returns the encoding of v.
func (r *Registry) Marshal(id ID, v any) ([]byte, error) {
	w := wire.NewWriter(nil).WithMaxDepth(r.opts.MaxDepth)
	if err := r.Serialize(id, v, w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unmarshal decodes b, which must hold exactly one value.
func (r *Registry) Unmarshal(id ID, b []byte) (any, error) {
	rd := r.NewReader(b)
	v, err := r.Deserialize(id, rd)
	if err != nil {
		return nil, err
	}
	if n := rd.Remaining(); n > 0 {
		return nil, avroerr.Malformedf(rd.Offset(), avroerr.CodeTrailingBytes, "%d bytes remain after the value", n)
	}
	return v, nil
}

// NewReader returns an in-memory reader configured with the registry's
// decoding options.
func (r *Registry) NewReader(b []byte) *wire.Reader {
	return wire.NewReader(b).WithOptions(r.opts.readerOptions())
}

// CompileResolver prepares decoding of data written with writerDoc into
// values shaped by the schema registered under readerID.
func (r *Registry) CompileResolver(readerID ID, writerDoc any) (*Resolver, error) {
	c, err := r.Get(readerID)
	if err != nil {
		return nil, err
	}
	ws, err := ir.Build(writerDoc, ir.Options{External: r.externalTypes()})
	if err != nil {
		return nil, errors.Wrap(err, "avrogen: writer schema")
	}
	inner, err := gen.NewResolver(ws.Root, c.schema.Root, r.opts.genOptions())
	if err != nil {
		return nil, err
	}
	return &Resolver{Reader: readerID, WriterFingerprint: ws.Root.Fingerprint64(), inner: inner}, nil
}

// IDs lists the identifiers of published pairs in sorted order.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	out := make([]ID, 0, len(r.compiled))
	for id := range r.compiled {
		out = append(out, id)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, compareIDs)
	return out
}

// Failures returns the compilation error recorded for each identifier that
// failed and has not compiled since.
func (r *Registry) Failures() map[ID]error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[ID]error, len(r.failures))
	for id, err := range r.failures {
		out[id] = err
	}
	return out
}
