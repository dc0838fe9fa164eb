package topology

import (
	"github.com/cockroachdb/errors"
)

// CryptoMapping exposes the encrypted Device as /dev/mapper/<Name>.
type CryptoMapping struct {
	Name   string
	Device Device
}

// CryptoTable holds the active crypto mappings in a fixed order.
type CryptoTable struct {
	mappings []CryptoMapping
}

// NewCryptoTable validates and returns a table. Every name must be unique and
// map to one backing device, and no two names may share a backing device.
func NewCryptoTable(mappings ...CryptoMapping) (*CryptoTable, error) {
	names := make(map[string]bool, len(mappings))
	backing := make(map[string]string, len(mappings))
	for _, m := range mappings {
		if m.Name == "" {
			return nil, topologyErrorf("crypto mapping without a name")
		}
		if m.Device == nil {
			return nil, topologyErrorf("crypto mapping %q has no backing device", m.Name)
		}
		if names[m.Name] {
			return nil, topologyErrorf("duplicate crypto mapping %q", m.Name)
		}
		names[m.Name] = true
		if other, ok := backing[m.Device.Path()]; ok {
			err := topologyErrorf("crypto mappings %q and %q share backing device %s",
				other, m.Name, m.Device.Path())
			return nil, errors.Mark(err, ErrAmbiguousMapping)
		}
		backing[m.Device.Path()] = m.Name
	}
	return &CryptoTable{mappings: append([]CryptoMapping(nil), mappings...)}, nil
}

// Mappings returns the entries in table order.
func (t *CryptoTable) Mappings() []CryptoMapping {
	if t == nil {
		return nil
	}
	return append([]CryptoMapping(nil), t.mappings...)
}

func (t *CryptoTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.mappings)
}

// Matches returns every entry whose backing device is d itself or something d is built on.
func (t *CryptoTable) Matches(d Device) []CryptoMapping {
	if t == nil || d == nil {
		return nil
	}
	var out []CryptoMapping
	for _, m := range t.mappings {
		if d.Path() == m.Device.Path() || DependsOn(d, m.Device) {
			out = append(out, m)
		}
	}
	return out
}

// Match returns the first entry in table order that d is encrypted by.
func (t *CryptoTable) Match(d Device) (CryptoMapping, bool) {
	matches := t.Matches(d)
	if len(matches) == 0 {
		return CryptoMapping{}, false
	}
	return matches[0], true
}
