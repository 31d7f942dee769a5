// Package dir discovers schemas laid out as root/namespace/name/version/ on
// an afero filesystem. Each version directory holds one schema document and,
// optionally, an example document.
package dir

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/reoring/avrogen"
	"github.com/reoring/avrogen/source"
)

// Options configures a directory source.
type Options struct {
	// Fs is the filesystem to walk. Defaults to the OS filesystem.
	Fs afero.Fs
	// Roots are the schema root directories, walked in order.
	Roots []string
	// SchemaFiles are the candidate schema file names, tried in order.
	SchemaFiles []string
	// ExampleFiles are the candidate example file names, tried in order.
	ExampleFiles []string
	// Logger reports skipped directories. Defaults to a no-op logger.
	Logger *zap.Logger
}

var (
	DefaultSchemaFiles  = []string{"schema.yaml", "schema.yml", "schema.json", "schema.avsc"}
	DefaultExampleFiles = []string{"example.yaml", "example.yml", "example.json"}
)

// Source is an avrogen.Source over a directory tree.
type Source struct {
	opts Options
}

var _ avrogen.Source = (*Source)(nil)

// New returns a directory source.
func New(opts Options) *Source {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if len(opts.SchemaFiles) == 0 {
		opts.SchemaFiles = DefaultSchemaFiles
	}
	if len(opts.ExampleFiles) == 0 {
		opts.ExampleFiles = DefaultExampleFiles
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Source{opts: opts}
}

// Documents walks every root. Directory entries are visited in name order,
// so the result is deterministic. A version directory without a schema file
// is skipped; one whose schema cannot be read or decoded yields a Document
// carrying Err.
func (s *Source) Documents(ctx context.Context) ([]avrogen.Document, error) {
	var out []avrogen.Document
	for _, root := range s.opts.Roots {
		namespaces, err := s.subdirs(root)
		if err != nil {
			return nil, errors.Wrapf(err, "dir: reading schema root %s", root)
		}
		for _, ns := range namespaces {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			names, err := s.subdirs(filepath.Join(root, ns))
			if err != nil {
				return nil, err
			}
			for _, name := range names {
				versions, err := s.subdirs(filepath.Join(root, ns, name))
				if err != nil {
					return nil, err
				}
				for _, version := range versions {
					id := avrogen.ID{Namespace: ns, Name: name, Version: version}
					doc, ok := s.document(id, filepath.Join(root, ns, name, version))
					if ok {
						out = append(out, doc)
					}
				}
			}
		}
	}
	return out, nil
}

func (s *Source) subdirs(path string) ([]string, error) {
	infos, err := afero.ReadDir(s.opts.Fs, path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, fi := range infos {
		if fi.IsDir() {
			out = append(out, fi.Name())
		}
	}
	return out, nil
}

func (s *Source) document(id avrogen.ID, path string) (avrogen.Document, bool) {
	schemaPath, ok := s.find(path, s.opts.SchemaFiles)
	if !ok {
		s.opts.Logger.Debug("no schema file", zap.String("dir", path))
		return avrogen.Document{}, false
	}
	doc := avrogen.Document{ID: id, Location: schemaPath}
	data, err := afero.ReadFile(s.opts.Fs, schemaPath)
	if err != nil {
		doc.Err = errors.Wrapf(err, "dir: reading %s", schemaPath)
		return doc, true
	}
	if doc.Schema, err = source.Decode(source.FormatOf(schemaPath), data); err != nil {
		doc.Err = errors.Wrapf(err, "dir: %s", schemaPath)
		return doc, true
	}
	if examplePath, ok := s.find(path, s.opts.ExampleFiles); ok {
		data, err := afero.ReadFile(s.opts.Fs, examplePath)
		if err == nil {
			doc.Examples, err = source.DecodeAll(source.FormatOf(examplePath), data)
		}
		if err != nil {
			s.opts.Logger.Warn("unreadable example", zap.String("path", examplePath), zap.Error(err))
		}
	}
	return doc, true
}

func (s *Source) find(dir string, names []string) (string, bool) {
	for _, name := range names {
		p := filepath.Join(dir, name)
		fi, err := s.opts.Fs.Stat(p)
		if err == nil && fi.Mode().IsRegular() {
			return p, true
		}
		if err != nil && !os.IsNotExist(err) {
			s.opts.Logger.Debug("stat failed", zap.String("path", p), zap.Error(err))
		}
	}
	return "", false
}
