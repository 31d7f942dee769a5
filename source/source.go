// Package source decodes schema and example documents from JSON or YAML text
// into the raw trees (map[string]any, []any and scalars) the schema builder
// consumes.
package source

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Format is a document encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatOf picks the format from a file name. Avro's .avsc files are JSON;
// anything unrecognized is treated as YAML, which also accepts JSON text.
func FormatOf(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".avsc":
		return FormatJSON
	}
	return FormatYAML
}

// Decode decodes a single document in the given format.
func Decode(f Format, data []byte) (any, error) {
	if f == FormatJSON {
		return DecodeJSON(data)
	}
	return DecodeYAML(data)
}

// DecodeAll decodes every document in data. JSON input holds exactly one
// document; YAML input may hold several separated by "---".
func DecodeAll(f Format, data []byte) ([]any, error) {
	if f == FormatJSON {
		v, err := DecodeJSON(data)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var out []any
	for {
		var node any
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, errors.Wrap(err, "source: decoding yaml")
		}
		out = append(out, yamlNormalizeValue(node))
	}
	return out, nil
}

// DecodeJSON decodes one JSON document. Numbers are kept as json.Number so
// that long values survive without float rounding. Duplicate object keys are
// rejected with avroerr.Issues.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(err, "source: decoding json")
	}
	if dec.More() {
		return nil, errors.New("source: trailing data after json document")
	}
	iss, err := DuplicateKeys(data)
	if err != nil {
		return nil, err
	}
	if len(iss) > 0 {
		return nil, iss
	}
	return v, nil
}

// DecodeYAML decodes one YAML document, normalizing maps to map[string]any.
func DecodeYAML(data []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(err, "source: decoding yaml")
	}
	return yamlNormalizeValue(v), nil
}

// yamlNormalizeMap converts a YAML-decoded map to map[string]any, recursing
// into its values. A map with a non-string key stays map[any]any so that
// schema building reports it instead of losing the entry.
func yamlNormalizeMap(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = yamlNormalizeValue(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			ks, ok := k.(string)
			if !ok {
				raw := make(map[any]any, len(t))
				for k, vv := range t {
					raw[k] = yamlNormalizeValue(vv)
				}
				return raw
			}
			out[ks] = yamlNormalizeValue(vv)
		}
		return out
	}
	return v
}

func yamlNormalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any, map[any]any:
		return yamlNormalizeMap(t)
	case []any:
		arr := make([]any, len(t))
		for i := range t {
			arr[i] = yamlNormalizeValue(t[i])
		}
		return arr
	default:
		return v
	}
}
