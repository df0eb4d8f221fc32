package keyslot

import "github.com/awnumar/memguard"

// Snapshot field names.
const (
	FieldKey = "KEY"
	FieldIV  = "IV"
)

// Bundle carries named byte fields across the save/restore boundary.
// The store reads FieldKey and FieldIV from it and never retains it.
type Bundle interface {
	// Get returns the named field and whether it is present.
	Get(name string) ([]byte, bool)

	// Put sets the named field.
	Put(name string, value []byte)
}

// Snapshot is a map-backed Bundle. The zero value is usable for reads;
// use make or a literal before calling Put.
//
// Snapshot can be encoded with MarshalBinary for persistence.
type Snapshot map[string][]byte

// Get returns the named field.
func (s Snapshot) Get(name string) ([]byte, bool) {
	v, ok := s[name]
	return v, ok
}

// Put stores a copy of value under name. Like any map write, Put on a nil
// Snapshot panics.
func (s Snapshot) Put(name string, value []byte) {
	s[name] = clone(value)
}

// Empty reports whether the snapshot has no key material fields.
func (s Snapshot) Empty() bool {
	_, hasKey := s[FieldKey]
	_, hasIV := s[FieldIV]
	return !hasKey && !hasIV
}

// Wipe zeroes every field and empties the snapshot.
func (s Snapshot) Wipe() {
	for name, v := range s {
		memguard.WipeBytes(v)
		delete(s, name)
	}
}

// Compile-time interface check.
var _ Bundle = Snapshot(nil)

// isNilBundle reports whether b is nil or a nil Snapshot, which cannot be written.
func isNilBundle(b Bundle) bool {
	if b == nil {
		return true
	}
	snap, ok := b.(Snapshot)
	return ok && snap == nil
}

// readBundle extracts both key material fields. Partial data is invalid.
func readBundle(b Bundle) (key, iv []byte, ok bool) {
	if isNilBundle(b) {
		return nil, nil, false
	}
	key, hasKey := b.Get(FieldKey)
	iv, hasIV := b.Get(FieldIV)
	if !hasKey || !hasIV || key == nil || iv == nil {
		return nil, nil, false
	}
	return key, iv, true
}
