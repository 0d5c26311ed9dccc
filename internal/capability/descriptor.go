// Package capability implements the artifacts a successful resolution
// hands back: the connection descriptor, the ephemeral integrity-
// checked token wrapping it, and the operation grant derived from the
// caller's claims.
package capability

// Descriptor describes how to reach a resolved resource. It is a pure
// value; the token exposes it only by copy so holders cannot mutate
// digested state.
type Descriptor struct {
	// Protocol names the access protocol, e.g. "https" or "postgres".
	Protocol string `json:"protocol"`

	// Address is the fully substituted connection address.
	Address string `json:"address"`

	// CredentialRef points at credential material held by a secrets
	// provider. Never the material itself.
	CredentialRef string `json:"credentialRef,omitempty"`
}
