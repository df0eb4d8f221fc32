package keyslot

import (
	"bytes"
	"strings"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	s := Snapshot{
		FieldKey: seqBytes(16, 0xAA),
		FieldIV:  seqBytes(16, 0xBB),
		"extra":  {},
	}

	data, err := s.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if string(data[:2]) != magic || data[2] != formatVersion || data[3] != 3 {
		t.Fatalf("header: got %x", data[:4])
	}

	got, err := ParseSnapshot(data)
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}
	if len(got) != len(s) {
		t.Fatalf("fields: got %d, want %d", len(got), len(s))
	}
	for name, want := range s {
		if !bytes.Equal(got[name], want) {
			t.Errorf("field %q: got %x, want %x", name, got[name], want)
		}
	}
}

func TestSnapshotEncodingDeterministic(t *testing.T) {
	a := Snapshot{FieldIV: makeKey(16), FieldKey: makeKey(16)}
	b := Snapshot{FieldKey: makeKey(16), FieldIV: makeKey(16)}

	da, err := a.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	db, err := b.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(da, db) {
		t.Error("equal snapshots encoded differently")
	}
}

func TestSnapshotEmptyRoundTrip(t *testing.T) {
	data, err := Snapshot{}.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != minHeaderSize {
		t.Errorf("empty snapshot: got %d bytes, want %d", len(data), minHeaderSize)
	}
	got, err := ParseSnapshot(data)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Empty() {
		t.Error("decoded snapshot is not empty")
	}
}

func TestUnmarshalCopiesInput(t *testing.T) {
	data, err := Snapshot{FieldKey: makeKey(16)}.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseSnapshot(data)
	if err != nil {
		t.Fatal(err)
	}
	clear(data)
	if !bytes.Equal(got[FieldKey], makeKey(16)) {
		t.Error("decoded value aliases the input buffer")
	}
}

func TestParseSnapshotInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short", []byte("KS")},
		{"bad magic", []byte("XX\x01\x00")},
		{"unsupported version", []byte("KS\x99\x00")},
		{"missing field", []byte("KS\x01\x01")},
		{"zero name length", []byte("KS\x01\x01\x00\x00\x00")},
		{"truncated name", []byte("KS\x01\x01\x03KE")},
		{"truncated value", []byte("KS\x01\x01\x03KEY\x00\x10abc")},
		{"trailing bytes", []byte("KS\x01\x01\x02IV\x00\x01Zjunk")},
		{"duplicate field", []byte("KS\x01\x02\x02IV\x00\x01Z\x02IV\x00\x01Z")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSnapshot(tt.data)
			if !IsInvalidFormat(err) {
				t.Errorf("expected ErrInvalidFormat, got %v", err)
			}
		})
	}
}

func TestUnmarshalFailureKeepsSnapshot(t *testing.T) {
	s := Snapshot{FieldKey: makeKey(16)}
	if err := s.UnmarshalBinary([]byte("bogus")); err == nil {
		t.Fatal("expected error")
	}
	if !bytes.Equal(s[FieldKey], makeKey(16)) {
		t.Error("failed unmarshal modified the snapshot")
	}
}

func TestMarshalInvalidFields(t *testing.T) {
	tests := []struct {
		name string
		s    Snapshot
	}{
		{"empty name", Snapshot{"": {1}}},
		{"name too long", Snapshot{strings.Repeat("n", maxFieldName+1): {1}}},
		{"value too long", Snapshot{FieldKey: make([]byte, maxFieldValue+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.s.MarshalBinary(); !IsInvalidFormat(err) {
				t.Errorf("expected ErrInvalidFormat, got %v", err)
			}
		})
	}
}

func TestMarshalMaxSizes(t *testing.T) {
	s := Snapshot{strings.Repeat("n", maxFieldName): make([]byte, maxFieldValue)}
	data, err := s.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	got, err := ParseSnapshot(data)
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}
	if len(got[strings.Repeat("n", maxFieldName)]) != maxFieldValue {
		t.Error("max-size field did not survive round trip")
	}
}

func TestSnapshotWipe(t *testing.T) {
	key := makeKey(16)
	s := Snapshot{FieldKey: key}
	s.Wipe()

	if len(s) != 0 {
		t.Errorf("fields after Wipe: %d", len(s))
	}
	for i, b := range key {
		if b != 0 {
			t.Fatalf("byte %d not wiped: %d", i, b)
		}
	}
}

func FuzzParseSnapshot(f *testing.F) {
	seed, _ := Snapshot{FieldKey: makeKey(16), FieldIV: makeKey(16)}.MarshalBinary()
	f.Add(seed)
	f.Add([]byte("KS\x01\x00"))
	f.Add([]byte("KS\x01\x01\x02IV\x00\x01Z"))

	f.Fuzz(func(t *testing.T, data []byte) {
		s, err := ParseSnapshot(data)
		if err != nil {
			if !IsInvalidFormat(err) {
				t.Fatalf("unexpected error kind: %v", err)
			}
			return
		}
		// Anything accepted must re-encode and parse again.
		out, err := s.MarshalBinary()
		if err != nil {
			t.Fatalf("re-encode: %v", err)
		}
		again, err := ParseSnapshot(out)
		if err != nil {
			t.Fatalf("re-parse: %v", err)
		}
		if len(again) != len(s) {
			t.Fatalf("field count changed: %d vs %d", len(again), len(s))
		}
	})
}
