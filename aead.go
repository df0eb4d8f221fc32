package keyslot

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	gcmNonceSize = 12
	gcmTagSize   = 16
	gcmKDFInfo   = "keyslot aes-gcm v1"
)

// AESGCM returns a CipherFactory producing authenticated AES-GCM ciphers.
//
// The AES key is derived from the slot key with HKDF-SHA256, salted with the
// slot IV, so it is never the key AESCBC uses. Every encryption draws a fresh
// nonce from crypto/rand and prepends it to the sealed output; decryption of
// modified input fails with ErrDecryptionFailed.
func AESGCM() CipherFactory {
	return aesGCM{nonces: RandSource()}
}

type aesGCM struct {
	nonces ByteSource
}

func (f aesGCM) NewCipher(key, iv []byte, mode Mode) (Cipher, error) {
	if !mode.valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	if err := validKeySize(len(key)); err != nil {
		return nil, err
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: iv has %d bytes, want %d", ErrInvalidKeySize, len(iv), IVSize)
	}

	derived := make([]byte, len(key))
	defer clear(derived)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, iv, []byte(gcmKDFInfo)), derived); err != nil {
		return nil, fmt.Errorf("keyslot: failed to derive AES-GCM key: %w", err)
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("keyslot: failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keyslot: failed to create GCM: %w", err)
	}
	return &gcmCipher{aead: aead, nonces: f.nonces, mode: mode}, nil
}

// gcmCipher output is nonce || ciphertext || tag.
type gcmCipher struct {
	aead   cipher.AEAD
	nonces ByteSource
	mode   Mode
}

func (c *gcmCipher) Process(in []byte) ([]byte, error) {
	if c.mode == ModeEncrypt {
		return c.seal(in)
	}
	return c.open(in)
}

func (c *gcmCipher) seal(plaintext []byte) ([]byte, error) {
	nonce, err := c.nonces.Bytes(gcmNonceSize)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %w", ErrByteSource, err)
	}
	if len(nonce) != gcmNonceSize {
		return nil, fmt.Errorf("%w: nonce: short read: got %d bytes, want %d", ErrByteSource, len(nonce), gcmNonceSize)
	}
	out := make([]byte, gcmNonceSize, gcmNonceSize+len(plaintext)+gcmTagSize)
	copy(out, nonce)
	return c.aead.Seal(out, nonce, plaintext, nil), nil
}

func (c *gcmCipher) open(data []byte) ([]byte, error) {
	if len(data) < gcmNonceSize+gcmTagSize {
		return nil, fmt.Errorf("%w: data too short", ErrDecryptionFailed)
	}
	plaintext, err := c.aead.Open(nil, data[:gcmNonceSize], data[gcmNonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}
	return plaintext, nil
}
