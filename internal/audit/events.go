// Package audit records the terminal outcome of every resolution and
// token validation. Events carry the trace id, caller, resource, and
// reason; they never carry credential material. Persistence is
// delegated to a Sink, and a sink failure never changes the decision
// that was being recorded.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies an audit event.
type Kind string

// Event kinds.
const (
	// KindHandshakeSuccess records a granted resolution.
	KindHandshakeSuccess Kind = "handshake_success"

	// KindHandshakeFailure records a denied or failed resolution.
	KindHandshakeFailure Kind = "handshake_failure"

	// KindPointerFailure records a capability token that failed
	// validation.
	KindPointerFailure Kind = "pointer_failure"
)

// Event is a single audit record.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// TraceID ties the event to the resolution flow that produced it.
	TraceID string `json:"traceId,omitempty"`

	// Timestamp is when the event was recorded, in UTC.
	Timestamp time.Time `json:"timestamp"`

	// Kind classifies the event.
	Kind Kind `json:"kind"`

	// CallerID identifies the caller, when known.
	CallerID string `json:"callerId,omitempty"`

	// Resource is the logical name involved.
	Resource string `json:"resource,omitempty"`

	// Reason explains the outcome.
	Reason string `json:"reason,omitempty"`
}

// NewEvent creates an event stamped with a fresh id and the current
// time.
func NewEvent(kind Kind, traceID, callerID, resource, reason string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		TraceID:   traceID,
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		CallerID:  callerID,
		Resource:  resource,
		Reason:    reason,
	}
}
