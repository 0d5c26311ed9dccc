// Package secrets resolves credential references carried by connection
// descriptors. The broker stores only opaque references; the material
// itself lives with a provider and is fetched at dispatch time. No
// provider ever logs credential values.
package secrets

import (
	"context"
	"errors"
)

// Provider errors.
var (
	// ErrNotFound indicates the reference has no credential.
	ErrNotFound = errors.New("credential not found")

	// ErrUnavailable indicates the provider backend failed.
	ErrUnavailable = errors.New("secrets provider unavailable")
)

// Credential is resolved credential material.
type Credential struct {
	// Header optionally names the transport header the value belongs
	// in, e.g. "Authorization".
	Header string `json:"header,omitempty"`

	// Value is the credential material.
	Value string `json:"value"`
}

// Provider resolves credential references.
type Provider interface {
	// Type identifies the provider, e.g. "local", "env", "vault".
	Type() string

	// Resolve returns the credential for a reference, or ErrNotFound.
	Resolve(ctx context.Context, ref string) (*Credential, error)

	// Close releases provider resources.
	Close() error
}
