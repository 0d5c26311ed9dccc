package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butterflysys/butterfly/internal/resource"
)

func TestWatcherReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "definitions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o600))

	reloads := make(chan []*resource.Definition, 4)
	w, err := NewWatcher(path, func(defs []*resource.Definition) {
		reloads <- defs
	})
	require.NoError(t, err)
	defer w.Close()

	// Overwrite with a smaller catalog.
	updated := `
definitions:
  - name: reports/acct-42
    descriptor:
      protocol: https
      addressTemplate: "https://reports-v2.internal/{ownerId}"
    requirement: {action: read, resourceType: report}
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case defs := <-reloads:
		require.Len(t, defs, 1)
		assert.Equal(t, "https://reports-v2.internal/{ownerId}", defs[0].Descriptor.AddressTemplate)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never delivered the reload")
	}
}

func TestWatcherRejectsBadCatalog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "definitions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o600))

	var mu sync.Mutex
	var calls int
	w, err := NewWatcher(path, func([]*resource.Definition) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer w.Close()

	// A catalog with an unknown operator must not reach the callback.
	bad := `
definitions:
  - name: a/b
    descriptor: {protocol: https, addressTemplate: "https://x"}
    requirement:
      operator: maybe
      clauses: [isOwner]
`
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o600))

	time.Sleep(time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestWatcherCloseIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "definitions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o600))

	w, err := NewWatcher(path, func([]*resource.Definition) {})
	require.NoError(t, err)

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
