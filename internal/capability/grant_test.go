package capability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGrant(t *testing.T) {
	t.Parallel()

	tok, err := Sign(testKey, testDescriptor(), time.Minute)
	require.NoError(t, err)

	tests := []struct {
		op   Operation
		want Grant
	}{
		{OperationRead, ReadGrant{token: tok}},
		{OperationWrite, WriteGrant{token: tok}},
		{OperationDelete, DeleteGrant{token: tok}},
		{OperationSearch, SearchGrant{token: tok}},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			t.Parallel()

			g, err := NewGrant(tt.op, tok)
			require.NoError(t, err)
			assert.Equal(t, tt.want, g)
			assert.Equal(t, tt.op, g.Operation())
			assert.Same(t, tok, g.Token())
		})
	}
}

func TestNewGrantUnknownOperation(t *testing.T) {
	t.Parallel()

	g, err := NewGrant("administer", nil)
	assert.Error(t, err)
	assert.Nil(t, g)
}

func TestGrantCarriesOnlyItsOperation(t *testing.T) {
	t.Parallel()

	tok, err := Sign(testKey, testDescriptor(), time.Minute)
	require.NoError(t, err)

	g, err := NewGrant(OperationRead, tok)
	require.NoError(t, err)

	// The variant is the authority: a read grant is not a write grant.
	_, isWrite := g.(WriteGrant)
	assert.False(t, isWrite)
	_, isRead := g.(ReadGrant)
	assert.True(t, isRead)
}
