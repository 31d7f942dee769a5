package avrogen

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ID identifies one compiled schema: the (namespace, name, version) triple of
// its location in a schema root.
type ID struct {
	Namespace string
	Name      string
	Version   string
}

// String renders the identifier as namespace.name.version. Namespaces may
// contain dots; names and versions may not.
func (id ID) String() string {
	return id.Namespace + "." + id.Name + "." + id.Version
}

// ParseID parses the form produced by ID.String, splitting from the right.
func ParseID(s string) (ID, error) {
	v := strings.LastIndexByte(s, '.')
	if v <= 0 {
		return ID{}, errors.Newf("avrogen: invalid schema identifier %q", s)
	}
	n := strings.LastIndexByte(s[:v], '.')
	if n <= 0 {
		return ID{}, errors.Newf("avrogen: invalid schema identifier %q", s)
	}
	id := ID{Namespace: s[:n], Name: s[n+1 : v], Version: s[v+1:]}
	if id.Name == "" || id.Version == "" {
		return ID{}, errors.Newf("avrogen: invalid schema identifier %q", s)
	}
	return id, nil
}

func (id ID) less(o ID) bool {
	if id.Namespace != o.Namespace {
		return id.Namespace < o.Namespace
	}
	if id.Name != o.Name {
		return id.Name < o.Name
	}
	return id.Version < o.Version
}
