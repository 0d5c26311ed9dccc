package capability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func testDescriptor() Descriptor {
	return Descriptor{
		Protocol:      "https",
		Address:       "https://reports.internal/acct-42",
		CredentialRef: "vault:secret/reports",
	}
}

func TestSignAndValidate(t *testing.T) {
	t.Parallel()

	tok, err := Sign(testKey, testDescriptor(), time.Minute)
	require.NoError(t, err)

	assert.NoError(t, tok.Validate(testKey))
	assert.NotEmpty(t, tok.Nonce())
	assert.True(t, tok.ExpiresAt().After(time.Now()))
	assert.Equal(t, testDescriptor(), tok.Descriptor())
}

func TestSignEmptyKey(t *testing.T) {
	t.Parallel()

	tok, err := Sign(nil, testDescriptor(), time.Minute)
	assert.Error(t, err)
	assert.Nil(t, tok)
}

func TestSignDefaultLifetime(t *testing.T) {
	t.Parallel()

	tok, err := Sign(testKey, testDescriptor(), 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultLifetime), tok.ExpiresAt(), 5*time.Second)
}

func TestValidateTamperedDescriptor(t *testing.T) {
	t.Parallel()

	tok, err := Sign(testKey, testDescriptor(), time.Minute)
	require.NoError(t, err)

	tok.descriptor.Address = "https://attacker.example/acct-42"
	assert.ErrorIs(t, tok.Validate(testKey), ErrIntegrity)
}

func TestValidateTamperedExpiry(t *testing.T) {
	t.Parallel()

	tok, err := Sign(testKey, testDescriptor(), time.Minute)
	require.NoError(t, err)

	// Extending the expiry invalidates the digest.
	tok.expiresAt = tok.expiresAt.Add(time.Hour)
	assert.ErrorIs(t, tok.Validate(testKey), ErrIntegrity)
}

func TestValidateWrongKey(t *testing.T) {
	t.Parallel()

	tok, err := Sign(testKey, testDescriptor(), time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, tok.Validate([]byte("another-key")), ErrIntegrity)
}

func TestValidateExpired(t *testing.T) {
	t.Parallel()

	tok, err := Sign(testKey, testDescriptor(), time.Nanosecond)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	// Repeated validation of an expired token is idempotent.
	assert.ErrorIs(t, tok.Validate(testKey), ErrExpired)
	assert.ErrorIs(t, tok.Validate(testKey), ErrExpired)
}

func TestIntegrityWinsOverExpiry(t *testing.T) {
	t.Parallel()

	tok, err := Sign(testKey, testDescriptor(), time.Nanosecond)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	// Tampered and expired: tampering is reported.
	tok.descriptor.Address = "https://attacker.example"
	assert.ErrorIs(t, tok.Validate(testKey), ErrIntegrity)
}

func TestDescriptorCopyIsDefensive(t *testing.T) {
	t.Parallel()

	tok, err := Sign(testKey, testDescriptor(), time.Minute)
	require.NoError(t, err)

	d := tok.Descriptor()
	d.Address = "mutated"

	assert.Equal(t, testDescriptor(), tok.Descriptor())
	assert.NoError(t, tok.Validate(testKey))
}

func TestNoncesAreUnique(t *testing.T) {
	t.Parallel()

	a, err := Sign(testKey, testDescriptor(), time.Minute)
	require.NoError(t, err)
	b, err := Sign(testKey, testDescriptor(), time.Minute)
	require.NoError(t, err)

	assert.NotEqual(t, a.Nonce(), b.Nonce())
}
