package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// envProvider resolves references to environment variables that were
// provisioned ahead of time, e.g. by an orchestrator. A reference
// "reports-key" with prefix "BUTTERFLY_CRED_" reads
// BUTTERFLY_CRED_REPORTS_KEY.
type envProvider struct {
	prefix string
}

// NewEnvProvider creates an environment-backed provider. An empty
// prefix defaults to "BUTTERFLY_CRED_".
func NewEnvProvider(prefix string) Provider {
	if prefix == "" {
		prefix = "BUTTERFLY_CRED_"
	}
	return &envProvider{prefix: prefix}
}

// Type identifies the provider.
func (p *envProvider) Type() string {
	return "env"
}

// Resolve reads the environment variable for a reference.
func (p *envProvider) Resolve(_ context.Context, ref string) (*Credential, error) {
	name := p.prefix + envName(ref)
	value, ok := os.LookupEnv(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not set", ErrNotFound, name)
	}
	return &Credential{Value: value}, nil
}

// Close releases resources.
func (p *envProvider) Close() error {
	return nil
}

// envName maps a reference to environment variable style.
func envName(ref string) string {
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case '-', '/', '.', ':':
			return '_'
		default:
			return r
		}
	}, ref)
	return strings.ToUpper(replaced)
}

// Ensure envProvider implements Provider.
var _ Provider = (*envProvider)(nil)
