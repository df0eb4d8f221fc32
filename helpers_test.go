package keyslot

import (
	"errors"
	"testing"

	"github.com/go-logr/logr/testr"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/atomic"
)

var inputData = []byte{1, 16, 84}

func makeKey(size int) []byte {
	return seqBytes(size, 0)
}

// seqBytes returns a linearly increasing sequence that wraps after 0xFF.
func seqBytes(n int, start byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

// sequenceSource generates non-random bytes for deterministic tests.
type sequenceSource struct {
	start byte
}

func (s sequenceSource) Bytes(n int) ([]byte, error) {
	return seqBytes(n, s.start), nil
}

// countingSource counts draws and can hold them until gate is closed.
type countingSource struct {
	calls atomic.Int64
	gate  chan struct{}
	src   ByteSource
}

func (c *countingSource) Bytes(n int) ([]byte, error) {
	c.calls.Inc()
	if c.gate != nil {
		<-c.gate
	}
	return c.src.Bytes(n)
}

// flakySource fails the first failures draws, then delegates.
type flakySource struct {
	failures atomic.Int64
	src      ByteSource
}

var errEntropy = errors.New("entropy pool unavailable")

func (f *flakySource) Bytes(n int) ([]byte, error) {
	if f.failures.Dec() >= 0 {
		return nil, errEntropy
	}
	return f.src.Bytes(n)
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	base := []Option{
		WithByteSource(sequenceSource{}),
		WithLogger(testr.New(t)),
		WithTracerProvider(tracenoop.NewTracerProvider()),
		WithMeterProvider(metricnoop.NewMeterProvider()),
	}
	s, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func snapshotOf(key, iv []byte) Snapshot {
	s := Snapshot{}
	if key != nil {
		s.Put(FieldKey, key)
	}
	if iv != nil {
		s.Put(FieldIV, iv)
	}
	return s
}

// sameOutputDifferentCiphers checks that two distinct ciphers produce the
// same output for input and returns that output.
func sameOutputDifferentCiphers(t *testing.T, input []byte, a, b Cipher) []byte {
	t.Helper()
	if a == nil || b == nil {
		t.Fatal("nil cipher")
	}
	if a == b {
		t.Fatal("expected distinct cipher instances")
	}

	aOut, err := a.Process(input)
	if err != nil {
		t.Fatalf("a.Process: %v", err)
	}
	bOut, err := b.Process(input)
	if err != nil {
		t.Fatalf("b.Process: %v", err)
	}
	if string(aOut) != string(bOut) {
		t.Fatalf("outputs differ: %x vs %x", aOut, bOut)
	}
	return aOut
}
