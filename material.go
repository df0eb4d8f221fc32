package keyslot

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Key and IV sizes.
const (
	// DefaultKeySize is the key size used when WithKeySize is not given (AES-128).
	DefaultKeySize = 16

	// IVSize is the initialization vector size (one AES block).
	IVSize = 16
)

// KeyMaterial is an immutable key and initialization vector pair.
// Accessors return copies, so callers cannot mutate the active material.
type KeyMaterial struct {
	key []byte
	iv  []byte
}

// NewKeyMaterial builds key material from the given bytes.
// The key must be 16, 24 or 32 bytes and the IV must be IVSize bytes.
// Both slices are copied.
func NewKeyMaterial(key, iv []byte) (KeyMaterial, error) {
	if err := validKeySize(len(key)); err != nil {
		return KeyMaterial{}, err
	}
	if len(iv) != IVSize {
		return KeyMaterial{}, fmt.Errorf("%w: iv has %d bytes, want %d", ErrInvalidKeySize, len(iv), IVSize)
	}
	return KeyMaterial{key: clone(key), iv: clone(iv)}, nil
}

// Key returns a copy of the key bytes.
func (m KeyMaterial) Key() []byte {
	return clone(m.key)
}

// IV returns a copy of the initialization vector bytes.
func (m KeyMaterial) IV() []byte {
	return clone(m.iv)
}

// IsZero reports whether m holds no key material.
func (m KeyMaterial) IsZero() bool {
	return len(m.key) == 0 && len(m.iv) == 0
}

// Equal reports whether m and o hold byte-identical key and IV.
// The comparison runs in constant time for equal-length inputs.
func (m KeyMaterial) Equal(o KeyMaterial) bool {
	keyEq := subtle.ConstantTimeCompare(m.key, o.key)
	ivEq := subtle.ConstantTimeCompare(m.iv, o.iv)
	return keyEq&ivEq == 1
}

// Fingerprint returns a short, non-reversible identifier of the key material,
// suitable for logs and diagnostics.
func (m KeyMaterial) Fingerprint() string {
	if m.IsZero() {
		return ""
	}
	h, _ := blake2b.New256(nil)
	h.Write(m.key)
	h.Write(m.iv)
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// String redacts the key bytes.
func (m KeyMaterial) String() string {
	if m.IsZero() {
		return "KeyMaterial{}"
	}
	return fmt.Sprintf("KeyMaterial{key:REDACTED(%d) iv:REDACTED(%d) fp:%s}", len(m.key), len(m.iv), m.Fingerprint())
}

// GoString redacts the key bytes for %#v.
func (m KeyMaterial) GoString() string {
	return m.String()
}

func validKeySize(n int) error {
	switch n {
	case 16, 24, 32:
		return nil
	}
	return fmt.Errorf("%w: key has %d bytes, want 16, 24 or 32", ErrInvalidKeySize, n)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
