package resolver

import (
	"errors"
	"fmt"
)

// Resolution errors. Each failure mode keeps its own sentinel so
// callers can tell an unknown resource from a denial from an outage;
// conflating them is how an outage turns into a silent lockout.
var (
	// ErrNotFound indicates the logical name has no registered
	// definition.
	ErrNotFound = errors.New("resource not found")

	// ErrPolicyDenied indicates the caller's claims did not satisfy
	// the resource's policy.
	ErrPolicyDenied = errors.New("policy denied")

	// ErrUnavailable indicates the definition store could not be
	// reached. Never reported as not-found or denial.
	ErrUnavailable = errors.New("resolution unavailable")

	// ErrMalformedPolicy indicates the resource's policy cannot be
	// evaluated. Malformed policies fail closed.
	ErrMalformedPolicy = errors.New("malformed resource policy")
)

// ResolveError carries the context of a failed resolution.
type ResolveError struct {
	// Err is the sentinel classifying the failure.
	Err error

	// CallerID identifies the caller.
	CallerID string

	// Resource is the logical name being resolved.
	Resource string

	// Reason explains the failure. Safe for audit trails; never
	// contains credential material.
	Reason string
}

// Error returns the error message.
func (e *ResolveError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("resolve %s: %s", e.Resource, e.Reason)
	}
	return fmt.Sprintf("resolve %s: %v", e.Resource, e.Err)
}

// Unwrap returns the classifying sentinel.
func (e *ResolveError) Unwrap() error {
	return e.Err
}

// newResolveError builds a classified resolution failure.
func newResolveError(err error, callerID, resource, reason string) *ResolveError {
	return &ResolveError{
		Err:      err,
		CallerID: callerID,
		Resource: resource,
		Reason:   reason,
	}
}

// IsDenied reports whether err is a policy denial.
func IsDenied(err error) bool {
	return errors.Is(err, ErrPolicyDenied)
}

// IsNotFound reports whether err is an unknown-resource failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable reports whether err is an availability failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
