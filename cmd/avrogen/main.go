// Command avrogen compiles the schemas found under one or more schema roots
// and exercises the generated codecs.
//
// Usage:
//
//	avrogen list      --root schemata
//	avrogen check     --root schemata
//	avrogen roundtrip --root schemata
//	avrogen encode    --root schemata --id acme.user.v1 value.json > value.avro
//	avrogen decode    --root schemata --id acme.user.v1 value.avro
package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
)

func main() {
	if err := newRootCmd(afero.NewOsFs()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
