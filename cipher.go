package keyslot

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// Mode selects whether a Cipher encrypts or decrypts.
type Mode int

const (
	// ModeEncrypt produces ciphers that encrypt.
	ModeEncrypt Mode = iota + 1

	// ModeDecrypt produces ciphers that decrypt.
	ModeDecrypt
)

// String returns "encrypt", "decrypt" or "mode(N)".
func (m Mode) String() string {
	switch m {
	case ModeEncrypt:
		return "encrypt"
	case ModeDecrypt:
		return "decrypt"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func (m Mode) valid() bool {
	return m == ModeEncrypt || m == ModeDecrypt
}

// Cipher is a primitive bound to one key, IV and mode.
// Process is a finishing operation. With AESCBC every call starts from the IV
// again, so two ciphers built from the same parameters produce identical
// output; AESGCM ciphers draw a fresh nonce per encryption instead.
type Cipher interface {
	Process(in []byte) ([]byte, error)
}

// CipherFactory builds cipher primitives from key material.
type CipherFactory interface {
	NewCipher(key, iv []byte, mode Mode) (Cipher, error)
}

// CipherFactoryFunc adapts a function to a CipherFactory.
type CipherFactoryFunc func(key, iv []byte, mode Mode) (Cipher, error)

// NewCipher calls f(key, iv, mode).
func (f CipherFactoryFunc) NewCipher(key, iv []byte, mode Mode) (Cipher, error) {
	return f(key, iv, mode)
}

// AESCBC returns a CipherFactory producing AES-CBC ciphers with PKCS#7 padding.
// This is the default factory of a Store.
func AESCBC() CipherFactory {
	return aesCBC{}
}

type aesCBC struct{}

func (aesCBC) NewCipher(key, iv []byte, mode Mode) (Cipher, error) {
	if !mode.valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	if err := validKeySize(len(key)); err != nil {
		return nil, err
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv has %d bytes, want %d", ErrInvalidKeySize, len(iv), aes.BlockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keyslot: failed to create AES cipher: %w", err)
	}
	return &cbcCipher{block: block, iv: clone(iv), mode: mode}, nil
}

// cbcCipher holds no per-call state, so it is safe for concurrent use.
type cbcCipher struct {
	block cipher.Block
	iv    []byte
	mode  Mode
}

func (c *cbcCipher) Process(in []byte) ([]byte, error) {
	if c.mode == ModeEncrypt {
		return c.encrypt(in), nil
	}
	return c.decrypt(in)
}

func (c *cbcCipher) encrypt(plaintext []byte) []byte {
	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return out
}

func (c *cbcCipher) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of the block size", ErrDecryptionFailed, len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, ciphertext)
	plaintext, err := unpad(out, aes.BlockSize)
	if err != nil {
		clear(out)
		return nil, err
	}
	return plaintext, nil
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryptionFailed)
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecryptionFailed)
		}
	}
	return b[:len(b)-n], nil
}
