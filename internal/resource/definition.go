// Package resource defines the registered shape of a brokered
// resource: its logical name, the template for reaching it, and the
// access policy guarding it.
package resource

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/butterflysys/butterfly/internal/policy"
)

// Definition errors.
var (
	// ErrInvalidDefinition indicates a definition that cannot be
	// registered.
	ErrInvalidDefinition = errors.New("invalid resource definition")
)

// DescriptorSpec is the registered template a resolved connection
// descriptor is built from.
type DescriptorSpec struct {
	// Protocol names the access protocol, e.g. "https" or "postgres".
	Protocol string `json:"protocol" yaml:"protocol"`

	// AddressTemplate is the connection address. The placeholder
	// "{ownerId}" is substituted with the owner id derived from the
	// logical name at resolve time.
	AddressTemplate string `json:"addressTemplate" yaml:"addressTemplate"`

	// CredentialRef optionally points at credential material held by
	// a secrets provider. The broker never stores or logs the
	// material itself.
	CredentialRef string `json:"credentialRef,omitempty" yaml:"credentialRef,omitempty"`
}

// Definition is a registered resource: a logical name bound to a
// descriptor template and exactly one access policy.
type Definition struct {
	// Name is the logical name, e.g. "reports/acct-42". The segment
	// after the first "/" is the owner id, when present.
	Name string `json:"name" yaml:"name"`

	// Descriptor is the connection template.
	Descriptor DescriptorSpec `json:"descriptor" yaml:"descriptor"`

	// Requirement is the boolean access policy. Mutually exclusive
	// with Vector.
	Requirement *policy.Spec `json:"requirement,omitempty" yaml:"requirement,omitempty"`

	// Vector is the similarity access policy. Mutually exclusive
	// with Requirement.
	Vector *policy.VectorPolicy `json:"vector,omitempty" yaml:"vector,omitempty"`

	// UpdatedAt records the last registration time.
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// Clone returns a deep copy. Mutating the copy, including through its
// policy pointers, never affects the original.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	out := *d
	out.Requirement = d.Requirement.Clone()
	out.Vector = d.Vector.Clone()
	return &out
}

// Validate checks that the definition can be registered. A definition
// must carry exactly one policy kind, and that policy must compile.
func (d *Definition) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}
	if d.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidDefinition)
	}
	if strings.ContainsAny(d.Name, " \t\n") {
		return fmt.Errorf("%w: name %q contains whitespace", ErrInvalidDefinition, d.Name)
	}
	if d.Descriptor.Protocol == "" {
		return fmt.Errorf("%w: %q has no protocol", ErrInvalidDefinition, d.Name)
	}
	if d.Descriptor.AddressTemplate == "" {
		return fmt.Errorf("%w: %q has no address template", ErrInvalidDefinition, d.Name)
	}

	switch {
	case d.Requirement == nil && d.Vector == nil:
		return fmt.Errorf("%w: %q has no access policy", ErrInvalidDefinition, d.Name)
	case d.Requirement != nil && d.Vector != nil:
		return fmt.Errorf("%w: %q carries both a requirement and a vector policy", ErrInvalidDefinition, d.Name)
	case d.Requirement != nil:
		if _, err := d.Requirement.Compile(); err != nil {
			return fmt.Errorf("resource %q: %w", d.Name, err)
		}
	default:
		if err := d.Vector.Validate(); err != nil {
			return fmt.Errorf("resource %q: %w", d.Name, err)
		}
	}
	return nil
}

// OwnerID returns the owner id encoded in a logical name of the form
// "category/{ownerId}", or "" when the name has no owner segment.
func OwnerID(name string) string {
	if _, owner, ok := strings.Cut(name, "/"); ok {
		return owner
	}
	return ""
}
