// Package awskms seals keyslot snapshots with an AWS KMS key.
//
// The encoded snapshot is small enough to pass to KMS Encrypt directly, so no
// data key is involved.
//
// Usage:
//
//	cfg, err := awsconfig.LoadDefaultConfig(ctx)
//	sealer, err := awskms.NewSealer(kms.NewFromConfig(cfg), "alias/keyslot",
//	    awskms.WithEncryptionContext(map[string]string{"service": "billing"}),
//	)
//
//	blob, err := sealer.Seal(ctx, snap)
//	snap, err := sealer.Open(ctx, blob)
package awskms

import (
	"context"
	"fmt"
	"maps"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	keyslot "github.com/rbaliyan/config-keyslot"
)

// Client is the subset of the AWS KMS API used by the sealer.
type Client interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Option configures a Sealer.
type Option func(*Sealer)

// WithEncryptionContext binds sealed snapshots to the given KMS encryption
// context. Open must be called with a Sealer configured the same way.
func WithEncryptionContext(ec map[string]string) Option {
	return func(s *Sealer) {
		s.encryptionContext = maps.Clone(ec)
	}
}

// Sealer wraps snapshots with a KMS key.
type Sealer struct {
	client            Client
	keyID             string
	encryptionContext map[string]string
}

// NewSealer returns a Sealer for the KMS key ARN, ID or alias keyID.
func NewSealer(client Client, keyID string, opts ...Option) (*Sealer, error) {
	if client == nil {
		return nil, fmt.Errorf("awskms: client is nil")
	}
	if keyID == "" {
		return nil, fmt.Errorf("awskms: key ID is required")
	}
	s := &Sealer{client: client, keyID: keyID}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Seal encodes snap and encrypts it with the KMS key.
func (s *Sealer) Seal(ctx context.Context, snap keyslot.Snapshot) ([]byte, error) {
	if snap.Empty() {
		return nil, fmt.Errorf("awskms: %w: snapshot is empty", keyslot.ErrInvalidSnapshot)
	}
	data, err := snap.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("awskms: %w", err)
	}
	defer clear(data)

	out, err := s.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(s.keyID),
		Plaintext:         data,
		EncryptionContext: s.encryptionContext,
	})
	if err != nil {
		return nil, fmt.Errorf("awskms: failed to seal snapshot: %w", err)
	}
	return out.CiphertextBlob, nil
}

// Open decrypts a blob produced by Seal and decodes the snapshot.
func (s *Sealer) Open(ctx context.Context, blob []byte) (keyslot.Snapshot, error) {
	out, err := s.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob:    blob,
		KeyId:             aws.String(s.keyID),
		EncryptionContext: s.encryptionContext,
	})
	if err != nil {
		return nil, fmt.Errorf("awskms: failed to open snapshot: %w", err)
	}
	defer clear(out.Plaintext)

	snap, err := keyslot.ParseSnapshot(out.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("awskms: %w", err)
	}
	return snap, nil
}
