// Package storage defines the persistence contract behind the broker:
// resource definitions and audit events. Implementations must keep the
// error taxonomy honest — an unavailable backend is ErrUnavailable,
// never a not-found, so outages can never masquerade as denials.
package storage

import (
	"context"
	"errors"

	"github.com/butterflysys/butterfly/internal/audit"
	"github.com/butterflysys/butterfly/internal/resource"
)

// Storage errors.
var (
	// ErrNotFound indicates the logical name has no registered
	// definition.
	ErrNotFound = errors.New("resource definition not found")

	// ErrUnavailable indicates the backend could not be reached or
	// failed. Callers must not treat it as not-found or denial.
	ErrUnavailable = errors.New("storage unavailable")
)

// Store persists resource definitions and audit events.
type Store interface {
	// Init prepares the backend for use.
	Init(ctx context.Context) error

	// RegisterConnection stores or replaces a definition.
	RegisterConnection(ctx context.Context, def *resource.Definition) error

	// GetConnection returns the definition for a logical name, or
	// ErrNotFound.
	GetConnection(ctx context.Context, name string) (*resource.Definition, error)

	// LogEvent appends an audit event.
	LogEvent(ctx context.Context, event *audit.Event) error

	// Close releases backend resources.
	Close() error
}
