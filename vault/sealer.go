// Package vault seals keyslot snapshots with the HashiCorp Vault Transit
// secrets engine, so the key material a process persists between runs is
// never stored in the clear.
//
// Usage:
//
//	api, err := vaultapi.NewClient(vaultapi.DefaultConfig())
//	sealer, err := vault.NewSealer(vault.NewAPIClient(api), "keyslot")
//
//	// On shutdown.
//	snap := keyslot.Snapshot{}
//	store.SaveToBundle(snap)
//	sealed, err := sealer.Seal(ctx, snap)
//
//	// On startup.
//	snap, err := sealer.Open(ctx, sealed)
//	err = store.Restore(ctx, snap)
package vault

import (
	"context"
	"fmt"

	keyslot "github.com/rbaliyan/config-keyslot"
)

// Client abstracts the Vault Transit encrypt and decrypt operations.
// This allows injecting a mock for testing or wrapping any Vault client library.
type Client interface {
	// TransitEncrypt encrypts plaintext with the named Transit key and returns
	// Vault's ciphertext (e.g., "vault:v1:base64data").
	TransitEncrypt(ctx context.Context, keyName string, plaintext []byte) (string, error)

	// TransitDecrypt decrypts Vault ciphertext with the named Transit key.
	TransitDecrypt(ctx context.Context, keyName string, ciphertext string) ([]byte, error)
}

// Sealer wraps snapshots with a Transit key.
type Sealer struct {
	client  Client
	keyName string
}

// NewSealer returns a Sealer that uses the Transit key keyName.
func NewSealer(client Client, keyName string) (*Sealer, error) {
	if client == nil {
		return nil, fmt.Errorf("vault: client is nil")
	}
	if keyName == "" {
		return nil, fmt.Errorf("vault: transit key name is required")
	}
	return &Sealer{client: client, keyName: keyName}, nil
}

// Seal encodes snap and encrypts it with the Transit key.
// An empty snapshot is rejected; there is nothing worth persisting.
func (s *Sealer) Seal(ctx context.Context, snap keyslot.Snapshot) (string, error) {
	if snap.Empty() {
		return "", fmt.Errorf("vault: %w: snapshot is empty", keyslot.ErrInvalidSnapshot)
	}
	data, err := snap.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}
	defer clear(data)

	ciphertext, err := s.client.TransitEncrypt(ctx, s.keyName, data)
	if err != nil {
		return "", fmt.Errorf("vault: failed to seal snapshot with %q: %w", s.keyName, err)
	}
	return ciphertext, nil
}

// Open decrypts a value produced by Seal and decodes the snapshot.
func (s *Sealer) Open(ctx context.Context, ciphertext string) (keyslot.Snapshot, error) {
	data, err := s.client.TransitDecrypt(ctx, s.keyName, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open snapshot with %q: %w", s.keyName, err)
	}
	defer clear(data)

	snap, err := keyslot.ParseSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	return snap, nil
}
