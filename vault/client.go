package vault

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/vault/api"
)

// DefaultMount is the default mount path of the Transit secrets engine.
const DefaultMount = "transit"

// APIClient implements Client on top of the official Vault API client.
type APIClient struct {
	logical *api.Logical
	mount   string
}

// ClientOption configures an APIClient.
type ClientOption func(*APIClient)

// WithMount sets the Transit mount path. Defaults to DefaultMount.
func WithMount(mount string) ClientOption {
	return func(c *APIClient) {
		if mount != "" {
			c.mount = mount
		}
	}
}

// NewAPIClient wraps an authenticated Vault client.
func NewAPIClient(client *api.Client, opts ...ClientOption) *APIClient {
	c := &APIClient{logical: client.Logical(), mount: DefaultMount}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TransitEncrypt implements Client.
func (c *APIClient) TransitEncrypt(ctx context.Context, keyName string, plaintext []byte) (string, error) {
	path := fmt.Sprintf("%s/encrypt/%s", c.mount, keyName)
	secret, err := c.logical.WriteWithContext(ctx, path, map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	})
	if err != nil {
		return "", err
	}
	return responseString(secret, "ciphertext")
}

// TransitDecrypt implements Client.
func (c *APIClient) TransitDecrypt(ctx context.Context, keyName string, ciphertext string) ([]byte, error) {
	path := fmt.Sprintf("%s/decrypt/%s", c.mount, keyName)
	secret, err := c.logical.WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": ciphertext,
	})
	if err != nil {
		return nil, err
	}
	encoded, err := responseString(secret, "plaintext")
	if err != nil {
		return nil, err
	}
	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid plaintext encoding: %w", err)
	}
	return plaintext, nil
}

func responseString(secret *api.Secret, field string) (string, error) {
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("empty response from transit engine")
	}
	v, ok := secret.Data[field].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("no %s in response", field)
	}
	return v, nil
}
