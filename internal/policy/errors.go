package policy

import "errors"

// ErrMalformed indicates a policy definition that cannot be compiled
// into the requirement grammar. Malformed policies are rejected at
// registration; a resource that somehow carries one denies every
// request.
var ErrMalformed = errors.New("malformed policy")
