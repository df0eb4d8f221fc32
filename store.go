// Package keyslot manages a single slot of symmetric key material (a key and
// an initialization vector) shared by every part of a process.
//
// The key material is generated lazily, exactly once, the first time a cipher
// is requested, or it is restored from a snapshot saved by an earlier process.
// Once set it never changes: restoring different bytes afterwards fails and
// the active material stays authoritative.
//
//	store, err := keyslot.New()
//	...
//	// On startup, pin the material saved by the previous run.
//	if prev != nil && !store.RestoreFromBundle(ctx, prev) {
//	    log.Print("discarding stale key snapshot")
//	}
//
//	enc, err := store.GetCipher(ctx, keyslot.ModeEncrypt, nil)
//	ciphertext, err := enc.Process(plaintext)
//
//	// On shutdown, hand the material to the caller's persistence.
//	snap := keyslot.Snapshot{}
//	store.SaveToBundle(snap)
//
// A Store is safe for concurrent use. Construct one and share it; there is no
// package-level instance.
package keyslot

import (
	"context"
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Store holds at most one KeyMaterial for its whole lifetime.
//
// The slot is either unset or set. The first of GetCipher (generation) or
// Restore to take the slot lock sets it; every other caller, concurrent or
// later, observes that same material.
type Store struct {
	source  ByteSource
	factory CipherFactory
	keySize int
	log     logr.Logger
	tel     *telemetry

	active slot[KeyMaterial]
}

// Option configures a Store.
type Option func(*options)

type options struct {
	source         ByteSource
	factory        CipherFactory
	keySize        int
	logger         logr.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	err            error // deferred validation error from options
}

// WithByteSource sets the source of random bytes used for generation.
// Defaults to RandSource.
func WithByteSource(src ByteSource) Option {
	return func(o *options) {
		if src == nil {
			o.setErr(fmt.Errorf("keyslot: byte source is nil"))
			return
		}
		o.source = src
	}
}

// WithCipherFactory sets the factory used when GetCipher is called with a nil factory.
// Defaults to AESCBC.
func WithCipherFactory(f CipherFactory) Option {
	return func(o *options) {
		if f == nil {
			o.setErr(fmt.Errorf("keyslot: cipher factory is nil"))
			return
		}
		o.factory = f
	}
}

// WithKeySize sets the generated key size: 16, 24 or 32 bytes. Defaults to DefaultKeySize.
// Restored snapshots must carry a key of the same size.
func WithKeySize(n int) Option {
	return func(o *options) {
		if err := validKeySize(n); err != nil {
			o.setErr(err)
			return
		}
		o.keySize = n
	}
}

// WithLogger sets the logger. Defaults to logr.Discard.
func WithLogger(l logr.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTracerProvider sets the tracer provider. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets the meter provider. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

func (o *options) setErr(err error) {
	if o.err == nil {
		o.err = err
	}
}

// New creates an unset Store.
func New(opts ...Option) (*Store, error) {
	o := options{
		source:         RandSource(),
		factory:        AESCBC(),
		keySize:        DefaultKeySize,
		logger:         logr.Discard(),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.err != nil {
		return nil, o.err
	}

	log := o.logger.WithName("keyslot")
	return &Store{
		source:  o.source,
		factory: o.factory,
		keySize: o.keySize,
		log:     log,
		tel:     newTelemetry(o.tracerProvider, o.meterProvider, log),
	}, nil
}

// GetCipher returns a new cipher bound to the active key material and mode.
// If no material is set yet, it is generated first; concurrent callers share
// a single generation. A nil factory selects the store's default factory.
//
// Errors wrapping ErrByteSource leave the store unset, so a later call retries.
func (s *Store) GetCipher(ctx context.Context, mode Mode, factory CipherFactory) (Cipher, error) {
	ctx, span := s.tel.start(ctx, "keyslot.GetCipher", attribute.String("mode", mode.String()))
	defer span.End()

	if !mode.valid() {
		return nil, fail(span, fmt.Errorf("%w: %s", ErrInvalidMode, mode))
	}

	m, err := s.material(ctx)
	if err != nil {
		return nil, fail(span, err)
	}

	if factory == nil {
		factory = s.factory
	}
	c, err := factory.NewCipher(m.Key(), m.IV(), mode)
	if err != nil {
		return nil, fail(span, fmt.Errorf("keyslot: cipher factory: %w", err))
	}

	s.tel.cipher(ctx, mode)
	return c, nil
}

// Restore pins the key material carried by b.
//
// It returns an error wrapping ErrInvalidSnapshot when b is nil, lacks either
// field, or has fields of the wrong size, and ErrConflictingSnapshot when
// other material is already set. Restoring the active bytes again succeeds.
// A failed restore never changes the store.
func (s *Store) Restore(ctx context.Context, b Bundle) error {
	ctx, span := s.tel.start(ctx, "keyslot.Restore")
	defer span.End()

	key, iv, ok := readBundle(b)
	if !ok {
		s.tel.restore(ctx, outcomeInvalid)
		return fail(span, fmt.Errorf("%w: %s and %s are both required", ErrInvalidSnapshot, FieldKey, FieldIV))
	}
	if len(key) != s.keySize {
		s.tel.restore(ctx, outcomeInvalid)
		return fail(span, fmt.Errorf("%w: key has %d bytes, store uses %d", ErrInvalidSnapshot, len(key), s.keySize))
	}
	candidate, err := NewKeyMaterial(key, iv)
	if err != nil {
		s.tel.restore(ctx, outcomeInvalid)
		return fail(span, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err))
	}

	active, created, err := s.active.fill(func() (*KeyMaterial, error) {
		return &candidate, nil
	})
	switch {
	case err != nil:
		s.tel.restore(ctx, outcomeInvalid)
		return fail(span, err)
	case created:
		s.log.Info("restored key material", "fingerprint", candidate.Fingerprint())
		s.tel.restore(ctx, outcomeRestored)
		return nil
	case active.Equal(candidate):
		s.log.V(1).Info("snapshot matches active key material", "fingerprint", active.Fingerprint())
		s.tel.restore(ctx, outcomeMatched)
		return nil
	default:
		s.log.Info("rejected conflicting snapshot",
			"active", active.Fingerprint(), "snapshot", candidate.Fingerprint())
		s.tel.restore(ctx, outcomeConflict)
		return fail(span, fmt.Errorf("%w: active %s, snapshot %s",
			ErrConflictingSnapshot, active.Fingerprint(), candidate.Fingerprint()))
	}
}

// RestoreFromBundle is Restore reduced to a success flag.
func (s *Store) RestoreFromBundle(ctx context.Context, b Bundle) bool {
	return s.Restore(ctx, b) == nil
}

// SaveToBundle writes the active key and IV into b. It writes nothing when no
// material is set or b is nil (including a nil Snapshot), and never triggers
// generation or blocks.
func (s *Store) SaveToBundle(b Bundle) {
	m := s.active.load()
	if m == nil || isNilBundle(b) {
		return
	}
	b.Put(FieldKey, m.Key())
	b.Put(FieldIV, m.IV())
}

// CipherData returns the active key material and true if it is set.
// When nothing is set and generate is false it returns false without side
// effects; when generate is true it runs the same one-time generation as
// GetCipher.
func (s *Store) CipherData(ctx context.Context, generate bool) (KeyMaterial, bool, error) {
	if m := s.active.load(); m != nil {
		return *m, true, nil
	}
	if !generate {
		return KeyMaterial{}, false, nil
	}
	m, err := s.material(ctx)
	if err != nil {
		return KeyMaterial{}, false, err
	}
	return *m, true, nil
}

// Prewarm starts generation in the background so the first GetCipher does
// not pay for it. The returned channel receives the outcome once and is then
// closed. Prewarm on a set store completes immediately with nil.
func (s *Store) Prewarm(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		_, err := s.material(ctx)
		done <- err
	}()
	return done
}

// material returns the active key material, generating it if the slot is unset.
func (s *Store) material(ctx context.Context) (*KeyMaterial, error) {
	if m := s.active.load(); m != nil {
		return m, nil
	}
	m, _, err := s.active.fill(func() (*KeyMaterial, error) {
		return s.generate(ctx)
	})
	return m, err
}

// generate runs with the slot lock held.
func (s *Store) generate(ctx context.Context) (*KeyMaterial, error) {
	ctx, span := s.tel.start(ctx, "keyslot.Generate", attribute.Int("key_size", s.keySize))
	defer span.End()

	key, err := s.draw(s.keySize)
	if err != nil {
		err = fmt.Errorf("%w: key: %w", ErrByteSource, err)
		s.log.Error(err, "key generation failed")
		s.tel.generation(ctx, err)
		return nil, fail(span, err)
	}
	defer memguard.WipeBytes(key)

	iv, err := s.draw(IVSize)
	if err != nil {
		err = fmt.Errorf("%w: iv: %w", ErrByteSource, err)
		s.log.Error(err, "key generation failed")
		s.tel.generation(ctx, err)
		return nil, fail(span, err)
	}
	defer memguard.WipeBytes(iv)

	m, err := NewKeyMaterial(key, iv)
	if err != nil {
		s.tel.generation(ctx, err)
		return nil, fail(span, err)
	}

	s.log.Info("generated key material", "fingerprint", m.Fingerprint(), "keySize", s.keySize)
	s.tel.generation(ctx, nil)
	return &m, nil
}

// draw takes ownership of the returned slice; callers wipe it.
func (s *Store) draw(n int) ([]byte, error) {
	b, err := s.source.Bytes(n)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		memguard.WipeBytes(b)
		return nil, fmt.Errorf("short read: got %d bytes, want %d", len(b), n)
	}
	return b, nil
}
