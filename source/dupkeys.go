package source

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"

	"github.com/reoring/avrogen/avroerr"
)

type containerKind int

const (
	kindObject containerKind = iota
	kindArray
)

type dupFrame struct {
	kind         containerKind
	path         avroerr.PathRef
	keys         map[string]struct{}
	expectingKey bool
	nextIndex    int
}

// DuplicateKeys reports every object key that appears more than once in a
// JSON document, as schema issues addressed by JSON Pointer. A decoder keeps
// only the last occurrence, which would silently change a schema such as
// {"type": "int", "type": "string"}.
func DuplicateKeys(data []byte) (avroerr.Issues, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var (
		issues avroerr.Issues
		stack  []dupFrame
	)
	// path of the value about to be read
	next := avroerr.Root()
	// valueDone advances the enclosing container past one value.
	valueDone := func() {
		if len(stack) == 0 {
			return
		}
		top := &stack[len(stack)-1]
		switch top.kind {
		case kindObject:
			top.expectingKey = true
		case kindArray:
			top.nextIndex++
			next = top.path.Index(top.nextIndex)
		}
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return issues, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "source: scanning json")
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{':
				stack = append(stack, dupFrame{kind: kindObject, path: next, keys: make(map[string]struct{}), expectingKey: true})
			case '[':
				stack = append(stack, dupFrame{kind: kindArray, path: next})
				next = next.Index(0)
			case '}', ']':
				stack = stack[:len(stack)-1]
				valueDone()
			}
			continue
		}
		if len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.kind == kindObject && top.expectingKey {
				key, _ := tok.(string)
				if _, dup := top.keys[key]; dup {
					issues = avroerr.AppendIssues(issues, top.path.Field(key).Schemaf(avroerr.CodeDuplicateKey, "key %q is duplicated", key))
				}
				top.keys[key] = struct{}{}
				top.expectingKey = false
				next = top.path.Field(key)
				continue
			}
		}
		valueDone()
	}
}
