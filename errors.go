package keyslot

import "errors"

var (
	// ErrByteSource is returned when the byte source fails while generating key material.
	// The store stays unset and the next request retries generation.
	ErrByteSource = errors.New("keyslot: byte source failed")

	// ErrInvalidSnapshot is returned when a snapshot is absent, partial, or has fields of the wrong size.
	ErrInvalidSnapshot = errors.New("keyslot: invalid snapshot")

	// ErrConflictingSnapshot is returned when a snapshot differs from the active key material.
	ErrConflictingSnapshot = errors.New("keyslot: snapshot conflicts with active key material")

	// ErrInvalidKeySize is returned when a key is not 16, 24 or 32 bytes, or an IV is not 16 bytes.
	ErrInvalidKeySize = errors.New("keyslot: invalid key size")

	// ErrInvalidMode is returned for a cipher mode other than ModeEncrypt or ModeDecrypt.
	ErrInvalidMode = errors.New("keyslot: invalid cipher mode")

	// ErrInvalidFormat is returned when encoded snapshot data has an invalid format.
	ErrInvalidFormat = errors.New("keyslot: invalid snapshot format")

	// ErrDecryptionFailed is returned when decryption fails (wrong key, truncated or tampered data).
	ErrDecryptionFailed = errors.New("keyslot: decryption failed")
)

// IsByteSource returns true if the error is or wraps ErrByteSource.
func IsByteSource(err error) bool {
	return errors.Is(err, ErrByteSource)
}

// IsInvalidSnapshot returns true if the error is or wraps ErrInvalidSnapshot.
func IsInvalidSnapshot(err error) bool {
	return errors.Is(err, ErrInvalidSnapshot)
}

// IsConflictingSnapshot returns true if the error is or wraps ErrConflictingSnapshot.
func IsConflictingSnapshot(err error) bool {
	return errors.Is(err, ErrConflictingSnapshot)
}

// IsInvalidKeySize returns true if the error is or wraps ErrInvalidKeySize.
func IsInvalidKeySize(err error) bool {
	return errors.Is(err, ErrInvalidKeySize)
}

// IsInvalidMode returns true if the error is or wraps ErrInvalidMode.
func IsInvalidMode(err error) bool {
	return errors.Is(err, ErrInvalidMode)
}

// IsInvalidFormat returns true if the error is or wraps ErrInvalidFormat.
func IsInvalidFormat(err error) bool {
	return errors.Is(err, ErrInvalidFormat)
}

// IsDecryptionFailed returns true if the error is or wraps ErrDecryptionFailed.
func IsDecryptionFailed(err error) bool {
	return errors.Is(err, ErrDecryptionFailed)
}
