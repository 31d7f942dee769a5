// Package avrogen provides:
//
// - Compilation of Avro schemas into specialized encode/decode routine pairs (Registry.Compile)
// - A per-instance cache of compiled pairs keyed by (namespace, name, version)
// - Parallel discovery and compilation of schema roots via Source (see source/dir)
// - A stable error model via Issues (JSON Pointer, code, message) and sentinel kinds
// - Schema resolution from a writer schema to a compiled reader schema
//
// Design policy:
// - Keep only public APIs in the root package; put detailed implementations under internal/.
// - Place byte-level primitives under wire/, document decoding under source/, and the CLI under cmd/avrogen.
// - Prefer black-box testing against public APIs.
//
// Typical usage:
//
//	reg, err := avrogen.New(avrogen.Options{Logger: logger})
//	_, err = reg.Discover(ctx, dir.New(dir.Options{Roots: []string{"schemata"}}))
//	id := avrogen.ID{Namespace: "messaging", Name: "user", Version: "1"}
//	b, err := reg.Marshal(id, map[string]any{"name": "alice"})
//	v, err := reg.Unmarshal(id, b)
package avrogen
