package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/butterflysys/butterfly/internal/observability"
)

// VaultConfig configures the Vault-backed provider.
type VaultConfig struct {
	// Address is the Vault server URL.
	Address string `yaml:"address"`

	// Token authenticates the client.
	Token string `yaml:"token"`

	// Mount is the KV v2 mount path. Defaults to "secret".
	Mount string `yaml:"mount"`
}

// vaultProvider resolves references from a Vault KV v2 mount. A
// reference is "path#field"; the field defaults to "value".
type vaultProvider struct {
	client *vaultapi.Client
	mount  string
	logger observability.Logger
}

// VaultOption is a functional option for the Vault provider.
type VaultOption func(*vaultProvider)

// WithVaultLogger sets the logger.
func WithVaultLogger(logger observability.Logger) VaultOption {
	return func(p *vaultProvider) {
		p.logger = logger
	}
}

// NewVaultProvider creates a Vault-backed provider.
func NewVaultProvider(cfg VaultConfig, opts ...VaultOption) (Provider, error) {
	apiCfg := vaultapi.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}

	client, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}

	p := &vaultProvider{
		client: client,
		mount:  cfg.Mount,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Type identifies the provider.
func (p *vaultProvider) Type() string {
	return "vault"
}

// Resolve reads a credential from the KV mount.
func (p *vaultProvider) Resolve(ctx context.Context, ref string) (*Credential, error) {
	path, field, ok := strings.Cut(ref, "#")
	if !ok {
		field = "value"
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty reference path", ErrNotFound)
	}

	secret, err := p.client.KVv2(p.mount).Get(ctx, path)
	if err != nil {
		if errors.Is(err, vaultapi.ErrSecretNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	value, ok := secret.Data[field].(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no string field %q", ErrNotFound, path, field)
	}

	header, _ := secret.Data["header"].(string)
	return &Credential{Header: header, Value: value}, nil
}

// Close releases resources.
func (p *vaultProvider) Close() error {
	return nil
}

// Ensure vaultProvider implements Provider.
var _ Provider = (*vaultProvider)(nil)
