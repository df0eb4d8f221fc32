package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"
	keyslot "github.com/rbaliyan/config-keyslot"
)

// loadState restores the snapshot at path into store. A missing file is not an error.
func loadState(ctx context.Context, path string, store *keyslot.Store) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	defer memguard.WipeBytes(data)

	snap, err := keyslot.ParseSnapshot(data)
	if err != nil {
		return fmt.Errorf("state file %s: %w", path, err)
	}
	defer snap.Wipe()

	if err := store.Restore(ctx, snap); err != nil {
		return fmt.Errorf("state file %s: %w", path, err)
	}
	return nil
}

// saveState writes the store's snapshot to path with owner-only permissions.
// The file is replaced atomically; nothing is written while the store is unset.
func saveState(path string, store *keyslot.Store) error {
	snap := keyslot.Snapshot{}
	store.SaveToBundle(snap)
	defer snap.Wipe()
	if snap.Empty() {
		return nil
	}

	data, err := snap.MarshalBinary()
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(data)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".keyslot-*")
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}
