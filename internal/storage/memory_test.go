package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butterflysys/butterfly/internal/audit"
	"github.com/butterflysys/butterfly/internal/policy"
	"github.com/butterflysys/butterfly/internal/resource"
)

func testDefinition(name string) *resource.Definition {
	return &resource.Definition{
		Name: name,
		Descriptor: resource.DescriptorSpec{
			Protocol:        "https",
			AddressTemplate: "https://reports.internal/{ownerId}",
		},
		Requirement: &policy.Spec{Action: "read", ResourceType: "report"},
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Init(ctx))

	def := testDefinition("reports/acct-42")
	require.NoError(t, store.RegisterConnection(ctx, def))

	got, err := store.GetConnection(ctx, "reports/acct-42")
	require.NoError(t, err)
	assert.Equal(t, def.Name, got.Name)
	assert.Equal(t, def.Descriptor, got.Descriptor)
	assert.False(t, got.UpdatedAt.IsZero())

	// Re-registration replaces.
	def.Descriptor.Protocol = "postgres"
	require.NoError(t, store.RegisterConnection(ctx, def))
	got, err = store.GetConnection(ctx, "reports/acct-42")
	require.NoError(t, err)
	assert.Equal(t, "postgres", got.Descriptor.Protocol)
}

func TestMemoryStoreNotFound(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	def, err := store.GetConnection(context.Background(), "reports/ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, def)
}

func TestMemoryStoreReturnsCopy(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.RegisterConnection(ctx, testDefinition("reports/acct-42")))

	first, err := store.GetConnection(ctx, "reports/acct-42")
	require.NoError(t, err)
	first.Descriptor.AddressTemplate = "mutated"
	first.Requirement.Action = "delete"

	// The copy is deep: mutating through the policy pointer does not
	// reach the stored definition.
	second, err := store.GetConnection(ctx, "reports/acct-42")
	require.NoError(t, err)
	assert.Equal(t, "https://reports.internal/{ownerId}", second.Descriptor.AddressTemplate)
	assert.Equal(t, "read", second.Requirement.Action)
}

func TestMemoryStoreEventCap(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(WithMemoryEventCap(3)).(*memoryStore)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		event := audit.NewEvent(audit.KindHandshakeSuccess, "", "acct-42", fmt.Sprintf("r-%d", i), "")
		require.NoError(t, store.LogEvent(ctx, event))
	}

	events := store.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "r-2", events[0].Resource)
	assert.Equal(t, "r-4", events[2].Resource)
}
