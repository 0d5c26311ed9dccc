package capability

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultLifetime is the token lifetime used when none is given.
const DefaultLifetime = 60 * time.Second

// Validation failures. Integrity is always checked before expiry, so a
// tampered token reports ErrIntegrity even after it has expired.
var (
	// ErrIntegrity indicates the token's digest no longer matches
	// its contents.
	ErrIntegrity = errors.New("integrity_check_failed")

	// ErrExpired indicates the token's absolute expiry has passed.
	ErrExpired = errors.New("pointer_expired")
)

// Token is an ephemeral capability: a descriptor bound to a nonce and
// an absolute expiry by an HMAC-SHA256 digest. Tokens are immutable
// after signing; validation is read-only and idempotent.
type Token struct {
	descriptor Descriptor
	nonce      string
	expiresAt  time.Time
	digest     []byte
}

// Sign issues a token for the descriptor, valid for the given
// lifetime. A non-positive lifetime falls back to DefaultLifetime.
func Sign(key []byte, descriptor Descriptor, lifetime time.Duration) (*Token, error) {
	if len(key) == 0 {
		return nil, errors.New("signing key is empty")
	}
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}

	t := &Token{
		descriptor: descriptor,
		nonce:      uuid.NewString(),
		expiresAt:  time.Now().Add(lifetime).UTC(),
	}
	t.digest = computeDigest(key, t.descriptor, t.nonce, t.expiresAt)
	return t, nil
}

// Validate checks the token against the signing key. The digest is
// recomputed over the token's current contents first, so tampering is
// always reported ahead of expiry. Validating an expired token any
// number of times yields the same result.
func (t *Token) Validate(key []byte) error {
	if !hmac.Equal(t.digest, computeDigest(key, t.descriptor, t.nonce, t.expiresAt)) {
		return ErrIntegrity
	}
	if !time.Now().Before(t.expiresAt) {
		return ErrExpired
	}
	return nil
}

// Descriptor returns a copy of the wrapped descriptor. Mutating the
// copy does not affect the token.
func (t *Token) Descriptor() Descriptor {
	return t.descriptor
}

// Nonce returns the token's unique nonce.
func (t *Token) Nonce() string {
	return t.nonce
}

// ExpiresAt returns the token's absolute expiry.
func (t *Token) ExpiresAt() time.Time {
	return t.expiresAt
}

// computeDigest binds the descriptor, nonce, and expiry together. The
// encoding is canonical: fixed field order, newline separated, expiry
// as unix nanoseconds.
func computeDigest(key []byte, d Descriptor, nonce string, expiresAt time.Time) []byte {
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s\n%s\n%s\n%s\n%d",
		d.Protocol, d.Address, d.CredentialRef, nonce, expiresAt.UnixNano())
	return mac.Sum(nil)
}
