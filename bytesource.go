package keyslot

import (
	"crypto/rand"
	"io"
)

// ByteSource provides the random bytes used to generate key material.
// Implementations must be safe for concurrent use.
//
// Ownership of every returned slice passes to the caller, which zeroes it as
// soon as the bytes have been copied. Bytes must therefore return a fresh
// slice on each call: a source that hands out a shared or fixed buffer will
// find it wiped.
type ByteSource interface {
	// Bytes returns a newly allocated slice of n bytes. A short result is
	// treated as a failure.
	Bytes(n int) ([]byte, error)
}

// ByteSourceFunc adapts a function to a ByteSource. The function must follow
// the ByteSource ownership rule and return a fresh slice on each call.
type ByteSourceFunc func(n int) ([]byte, error)

// Bytes calls f(n).
func (f ByteSourceFunc) Bytes(n int) ([]byte, error) {
	return f(n)
}

// RandSource returns a ByteSource backed by crypto/rand.
func RandSource() ByteSource {
	return ReaderSource(rand.Reader)
}

// ReaderSource returns a ByteSource that fills each request from r.
// Reads are not synchronized, so r must be safe for concurrent use.
func ReaderSource(r io.Reader) ByteSource {
	return ByteSourceFunc(func(n int) ([]byte, error) {
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		return b, nil
	})
}
