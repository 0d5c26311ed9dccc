package resolver

import (
	"time"

	"github.com/butterflysys/butterfly/internal/policy"
)

// SecurityContext is everything the broker knows about a caller at
// resolution time. It is assembled by the transport layer and passed
// by value through the decision; the resolver never enriches it.
type SecurityContext struct {
	// CallerID identifies the caller, e.g. "acct-42".
	CallerID string

	// Claims are the caller's granted permissions.
	Claims []policy.Claim

	// OnCall indicates an active on-call shift.
	OnCall bool

	// Now overrides the evaluation time. Zero means time.Now.
	Now time.Time

	// Attributes carries the caller attributes consumed by vector
	// policies.
	Attributes map[string]any
}

// policyContext projects the security context and the resource's
// owner into the evaluator's input.
func (sc *SecurityContext) policyContext(ownerID string) *policy.Context {
	if sc == nil {
		return &policy.Context{OwnerID: ownerID}
	}
	return &policy.Context{
		CallerID:   sc.CallerID,
		OwnerID:    ownerID,
		OnCall:     sc.OnCall,
		Now:        sc.Now,
		Attributes: sc.Attributes,
	}
}

func (sc *SecurityContext) callerID() string {
	if sc == nil {
		return ""
	}
	return sc.CallerID
}
