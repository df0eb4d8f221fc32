package keyslot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// Binary format constants.
const (
	// magic is the 2-byte signature "KS" (Key Snapshot).
	magic = "KS"

	// formatVersion is the current binary format version.
	formatVersion = 0x01

	// minHeaderSize is magic(2) + version(1) + field count(1).
	minHeaderSize = 4

	// maxFieldName is the longest field name that fits the 1-byte length prefix.
	maxFieldName = 255

	// maxFieldValue is the largest value that fits the 2-byte length prefix.
	maxFieldValue = 0xFFFF
)

// MarshalBinary encodes the snapshot as
//
//	magic(2) | version(1) | count(1) | { nameLen(1) | name | valueLen(2, big endian) | value }...
//
// Fields are written in name order so equal snapshots encode identically.
func (s Snapshot) MarshalBinary() ([]byte, error) {
	if len(s) > 255 {
		return nil, fmt.Errorf("%w: too many fields (%d)", ErrInvalidFormat, len(s))
	}

	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.Write([]byte{formatVersion, byte(len(names))})
	for _, name := range names {
		if err := writeField(&buf, name, s[name]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeField(w io.Writer, name string, value []byte) error {
	if len(name) == 0 || len(name) > maxFieldName {
		return fmt.Errorf("%w: field name length %d", ErrInvalidFormat, len(name))
	}
	if len(value) > maxFieldValue {
		return fmt.Errorf("%w: field %q too long", ErrInvalidFormat, name)
	}

	// Name
	if _, err := w.Write(append([]byte{byte(len(name))}, name...)); err != nil {
		return err
	}

	// Value
	var size [2]byte
	binary.BigEndian.PutUint16(size[:], uint16(len(value)))
	if _, err := w.Write(size[:]); err != nil {
		return err
	}
	_, err := w.Write(value)
	return err
}

// UnmarshalBinary decodes data written by MarshalBinary into s, replacing its contents.
// Values are copied, so the caller may wipe data afterwards.
func (s *Snapshot) UnmarshalBinary(data []byte) error {
	if len(data) < minHeaderSize {
		return fmt.Errorf("%w: data too short", ErrInvalidFormat)
	}
	if string(data[0:2]) != magic {
		return fmt.Errorf("%w: invalid magic bytes", ErrInvalidFormat)
	}
	if data[2] != formatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, data[2])
	}

	count := int(data[3])
	offset := minHeaderSize
	out := make(Snapshot, count)
	for i := 0; i < count; i++ {
		if offset >= len(data) {
			return fmt.Errorf("%w: truncated field %d", ErrInvalidFormat, i)
		}
		nameLen := int(data[offset])
		offset++
		if nameLen == 0 || offset+nameLen+2 > len(data) {
			return fmt.Errorf("%w: truncated field %d", ErrInvalidFormat, i)
		}
		name := string(data[offset : offset+nameLen])
		offset += nameLen

		valueLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if offset+valueLen > len(data) {
			return fmt.Errorf("%w: truncated value for field %q", ErrInvalidFormat, name)
		}
		if _, dup := out[name]; dup {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidFormat, name)
		}
		out[name] = append([]byte{}, data[offset:offset+valueLen]...)
		offset += valueLen
	}

	if offset != len(data) {
		return fmt.Errorf("%w: %d trailing bytes", ErrInvalidFormat, len(data)-offset)
	}

	*s = out
	return nil
}

// ParseSnapshot decodes a snapshot produced by MarshalBinary.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := s.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return s, nil
}
