package vault

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	keyslot "github.com/rbaliyan/config-keyslot"
)

// mockClient implements Client for testing.
type mockClient struct {
	sealed map[string][]byte // "keyName:ciphertext" -> plaintext
	failOn string            // keyName to fail on
}

func newMockClient() *mockClient {
	return &mockClient{sealed: make(map[string][]byte)}
}

func (m *mockClient) TransitEncrypt(ctx context.Context, keyName string, plaintext []byte) (string, error) {
	if keyName == m.failOn {
		return "", fmt.Errorf("permission denied")
	}
	ciphertext := fmt.Sprintf("vault:v1:%d", len(m.sealed))
	m.sealed[keyName+":"+ciphertext] = append([]byte{}, plaintext...)
	return ciphertext, nil
}

func (m *mockClient) TransitDecrypt(ctx context.Context, keyName string, ciphertext string) ([]byte, error) {
	if keyName == m.failOn {
		return nil, fmt.Errorf("permission denied")
	}
	plaintext, ok := m.sealed[keyName+":"+ciphertext]
	if !ok {
		return nil, fmt.Errorf("decryption failed")
	}
	return append([]byte{}, plaintext...), nil
}

func makeBytes(size int, start byte) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

func testSnapshot() keyslot.Snapshot {
	return keyslot.Snapshot{
		keyslot.FieldKey: makeBytes(16, 0),
		keyslot.FieldIV:  makeBytes(16, 100),
	}
}

func TestNewSealer(t *testing.T) {
	if _, err := NewSealer(nil, "keyslot"); err == nil {
		t.Error("expected error for nil client")
	}
	if _, err := NewSealer(newMockClient(), ""); err == nil {
		t.Error("expected error for empty key name")
	}
	if _, err := NewSealer(newMockClient(), "keyslot"); err != nil {
		t.Errorf("NewSealer: %v", err)
	}
}

func TestSealOpen(t *testing.T) {
	ctx := context.Background()
	sealer, err := NewSealer(newMockClient(), "keyslot")
	if err != nil {
		t.Fatal(err)
	}

	snap := testSnapshot()
	sealed, err := sealer.Seal(ctx, snap)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	got, err := sealer.Open(ctx, sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, field := range []string{keyslot.FieldKey, keyslot.FieldIV} {
		want, _ := snap.Get(field)
		have, ok := got.Get(field)
		if !ok || !bytes.Equal(have, want) {
			t.Errorf("%s: got %v, want %v", field, have, want)
		}
	}
}

func TestSealEmptySnapshot(t *testing.T) {
	sealer, err := NewSealer(newMockClient(), "keyslot")
	if err != nil {
		t.Fatal(err)
	}
	_, err = sealer.Seal(context.Background(), keyslot.Snapshot{})
	if !keyslot.IsInvalidSnapshot(err) {
		t.Errorf("expected invalid snapshot error, got %v", err)
	}
}

func TestSealClientError(t *testing.T) {
	client := newMockClient()
	client.failOn = "keyslot"
	sealer, err := NewSealer(client, "keyslot")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sealer.Seal(context.Background(), testSnapshot()); err == nil {
		t.Error("expected error from client")
	}
	if _, err := sealer.Open(context.Background(), "vault:v1:0"); err == nil {
		t.Error("expected error from client")
	}
}

func TestOpenUnknownCiphertext(t *testing.T) {
	sealer, err := NewSealer(newMockClient(), "keyslot")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sealer.Open(context.Background(), "vault:v1:missing"); err == nil {
		t.Error("expected error for unknown ciphertext")
	}
}

func TestOpenCorruptPlaintext(t *testing.T) {
	client := newMockClient()
	client.sealed["keyslot:vault:v1:bad"] = []byte("garbage")
	sealer, err := NewSealer(client, "keyslot")
	if err != nil {
		t.Fatal(err)
	}
	_, err = sealer.Open(context.Background(), "vault:v1:bad")
	if !keyslot.IsInvalidFormat(err) {
		t.Errorf("expected invalid format error, got %v", err)
	}
}

func TestSealedStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	sealer, err := NewSealer(newMockClient(), "keyslot")
	if err != nil {
		t.Fatal(err)
	}

	first, err := keyslot.New()
	if err != nil {
		t.Fatal(err)
	}
	enc, err := first.GetCipher(ctx, keyslot.ModeEncrypt, nil)
	if err != nil {
		t.Fatal(err)
	}
	ciphertext, err := enc.Process([]byte("config value"))
	if err != nil {
		t.Fatal(err)
	}
	snap := keyslot.Snapshot{}
	first.SaveToBundle(snap)
	sealed, err := sealer.Seal(ctx, snap)
	if err != nil {
		t.Fatal(err)
	}

	// Next process.
	second, err := keyslot.New()
	if err != nil {
		t.Fatal(err)
	}
	opened, err := sealer.Open(ctx, sealed)
	if err != nil {
		t.Fatal(err)
	}
	if err := second.Restore(ctx, opened); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	dec, err := second.GetCipher(ctx, keyslot.ModeDecrypt, nil)
	if err != nil {
		t.Fatal(err)
	}
	plaintext, err := dec.Process(ciphertext)
	if err != nil {
		t.Fatal(err)
	}
	if string(plaintext) != "config value" {
		t.Errorf("got %q, want %q", plaintext, "config value")
	}
}
