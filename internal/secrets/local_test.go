package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLocalKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestLocalProviderRoundTrip(t *testing.T) {
	t.Parallel()

	p, err := NewLocalProvider(testLocalKey())
	require.NoError(t, err)

	cred := &Credential{Header: "Authorization", Value: "Bearer s3cr3t"}
	ref, err := p.Seal(cred)
	require.NoError(t, err)
	assert.NotContains(t, ref, "s3cr3t")

	got, err := p.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, cred, got)
}

func TestLocalProviderWrongKey(t *testing.T) {
	t.Parallel()

	sealer, err := NewLocalProvider(testLocalKey())
	require.NoError(t, err)
	ref, err := sealer.Seal(&Credential{Value: "s3cr3t"})
	require.NoError(t, err)

	other, err := NewLocalProvider([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)

	_, err = other.Resolve(context.Background(), ref)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalProviderMalformedReference(t *testing.T) {
	t.Parallel()

	p, err := NewLocalProvider(testLocalKey())
	require.NoError(t, err)

	for _, ref := range []string{"", "!!!", "c2hvcnQ"} {
		_, err := p.Resolve(context.Background(), ref)
		assert.ErrorIs(t, err, ErrNotFound, "ref %q", ref)
	}
}

func TestLocalProviderKeySize(t *testing.T) {
	t.Parallel()

	_, err := NewLocalProvider([]byte("too short"))
	assert.Error(t, err)
}
