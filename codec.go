package keyslot

import (
	"context"
	"fmt"

	"github.com/rbaliyan/config/codec"
)

// Transformer is a codec.Transformer that encrypts bytes under the store's
// key material with authenticated AES-GCM ciphers.
//
// Every call obtains fresh ciphers from the Store, so the first Transform or
// Reverse may trigger key generation. Each Transform uses a new random nonce,
// so equal inputs produce different outputs. Transformer is safe for
// concurrent use.
type Transformer struct {
	store   *Store
	factory CipherFactory
}

// Compile-time interface check.
var _ codec.Transformer = (*Transformer)(nil)

// NewTransformer creates a Transformer bound to store.
// Returns an error if store is nil.
func NewTransformer(store *Store) (*Transformer, error) {
	if store == nil {
		return nil, fmt.Errorf("keyslot: NewTransformer store is nil")
	}
	return &Transformer{store: store, factory: AESGCM()}, nil
}

// Name returns "keyslot".
func (t *Transformer) Name() string {
	return "keyslot"
}

// Transform encrypts data.
func (t *Transformer) Transform(ctx context.Context, data []byte) ([]byte, error) {
	enc, err := t.store.GetCipher(ctx, ModeEncrypt, t.factory)
	if err != nil {
		return nil, err
	}
	return enc.Process(data)
}

// Reverse decrypts data produced by Transform. Modified or foreign data fails
// with an error wrapping ErrDecryptionFailed.
func (t *Transformer) Reverse(ctx context.Context, data []byte) ([]byte, error) {
	dec, err := t.store.GetCipher(ctx, ModeDecrypt, t.factory)
	if err != nil {
		return nil, err
	}
	return dec.Process(data)
}

// NewCodec creates an encrypting codec that wraps the given inner codec.
// On Encode, the inner codec serializes the value, then the result is encrypted.
// On Decode, the data is decrypted, then the inner codec deserializes the plaintext.
//
// The codec name is "keyslot:<inner>", e.g. "keyslot:json".
// Returns an error if inner or store is nil.
func NewCodec(inner codec.Codec, store *Store) (codec.Codec, error) {
	if inner == nil {
		return nil, fmt.Errorf("keyslot: NewCodec inner codec is nil")
	}
	t, err := NewTransformer(store)
	if err != nil {
		return nil, err
	}
	return codec.NewChain(inner, t), nil
}
