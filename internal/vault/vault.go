// Package vault talks to a HashiCorp Vault KV v2 mount.
package vault

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	dserrors "github.com/systmms/vault-loader/internal/errors"
)

const (
	DefaultTimeout = 30 * time.Second

	// keyLeaf is the last path segment under which a key's secret lives.
	keyLeaf = "vkey"
)

// Client is the subset of Vault the loader needs. Implementations must be
// safe for concurrent use.
type Client interface {
	Read(ctx context.Context, path string) (*Secret, error)
	Write(ctx context.Context, path string, data map[string]interface{}) error
	Health(ctx context.Context) (*HealthStatus, error)
}

// Secret is the body of a logical read.
type Secret struct {
	Data     map[string]interface{} `json:"data"`
	Metadata map[string]interface{} `json:"metadata"`
}

// KVData returns the inner "data" map of a KV v2 read, or nil if the secret
// does not carry one.
func (s *Secret) KVData() map[string]interface{} {
	if s == nil || s.Data == nil {
		return nil
	}
	inner, _ := s.Data["data"].(map[string]interface{})
	return inner
}

// HealthStatus is what /sys/health reports.
type HealthStatus struct {
	Initialized bool
	Sealed      bool
	Standby     bool
	Version     string
}

// Options configures NewClient. CACert, ClientCert and ClientKey are file
// paths; the cert and key go together.
type Options struct {
	Address    string
	Token      string
	CACert     string
	ClientCert string
	ClientKey  string
	Timeout    time.Duration
}

// APIClient implements Client on top of the official Vault API client.
type APIClient struct {
	client *api.Client
}

var _ Client = (*APIClient)(nil)

// NewClient builds a client for opts. The API client's own retries are
// disabled; callers decide when to retry.
func NewClient(opts Options) (*APIClient, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("vault address is required")
	}
	if (opts.ClientCert == "") != (opts.ClientKey == "") {
		return nil, fmt.Errorf("client certificate and client key must be set together")
	}

	cfg := api.DefaultConfig()
	if cfg.Error != nil {
		return nil, fmt.Errorf("failed to load vault defaults: %w", cfg.Error)
	}
	cfg.Address = opts.Address
	cfg.MaxRetries = 0
	cfg.Timeout = DefaultTimeout
	if opts.Timeout > 0 {
		cfg.Timeout = opts.Timeout
	}

	if opts.CACert != "" || opts.ClientCert != "" {
		tlsCfg := &api.TLSConfig{
			CACert:     opts.CACert,
			ClientCert: opts.ClientCert,
			ClientKey:  opts.ClientKey,
		}
		if err := cfg.ConfigureTLS(tlsCfg); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(opts.Token)

	return &APIClient{client: client}, nil
}

// Read fetches the secret at path. A missing secret is ErrSecretNotFound.
func (c *APIClient) Read(ctx context.Context, path string) (*Secret, error) {
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if secret == nil {
		return nil, fmt.Errorf("read %s: %w", path, dserrors.ErrSecretNotFound)
	}

	return &Secret{Data: secret.Data}, nil
}

// Write stores data as a new KV v2 version at path.
func (c *APIClient) Write(ctx context.Context, path string, data map[string]interface{}) error {
	body := map[string]interface{}{"data": data}
	if _, err := c.client.Logical().WriteWithContext(ctx, path, body); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Health queries /sys/health.
func (c *APIClient) Health(ctx context.Context) (*HealthStatus, error) {
	resp, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return &HealthStatus{
		Initialized: resp.Initialized,
		Sealed:      resp.Sealed,
		Standby:     resp.Standby,
		Version:     resp.Version,
	}, nil
}

// KeyPath returns the logical path of the secret for pubkey under kvPath,
// e.g. "secret/data/web3signer/0xabc/vkey".
func KeyPath(kvPath, pubkey string) string {
	return strings.Trim(kvPath, "/") + "/" + pubkey + "/" + keyLeaf
}
