package modelstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// runStoreSuite exercises the Store contract against any implementation.
func runStoreSuite(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	// Missing snapshots report ErrNotFound.
	_, err := store.Open(ctx, "missing.cannon")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Stat(ctx, "missing.cannon")
	require.ErrorIs(t, err, ErrNotFound)

	// Put then read back.
	data := []byte("per-pixel coefficients and scatters, pretend-binary")
	require.NoError(t, store.Put(ctx, "apogee-v1.cannon", bytes.NewReader(data)))

	r, err := store.Open(ctx, "apogee-v1.cannon")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, data, got)

	info, err := store.Stat(ctx, "apogee-v1.cannon")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), info.Size)

	// Overwrite replaces wholesale.
	replacement := []byte("retrained")
	require.NoError(t, store.Put(ctx, "apogee-v1.cannon", bytes.NewReader(replacement)))
	info, err = store.Stat(ctx, "apogee-v1.cannon")
	require.NoError(t, err)
	require.Equal(t, int64(len(replacement)), info.Size)

	// List filters by prefix and sorts.
	require.NoError(t, store.Put(ctx, "apogee-v2.cannon", bytes.NewReader(data)))
	require.NoError(t, store.Put(ctx, "galah-v1.cannon", bytes.NewReader(data)))

	names, err := store.List(ctx, "apogee-")
	require.NoError(t, err)
	require.Equal(t, []string{"apogee-v1.cannon", "apogee-v2.cannon"}, names)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"apogee-v1.cannon", "apogee-v2.cannon", "galah-v1.cannon"}, all)

	// Delete is idempotent.
	require.NoError(t, store.Delete(ctx, "galah-v1.cannon"))
	require.NoError(t, store.Delete(ctx, "galah-v1.cannon"))
	_, err = store.Stat(ctx, "galah-v1.cannon")
	require.ErrorIs(t, err, ErrNotFound)

	// Canceled contexts are honored.
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.Error(t, store.Put(canceled, "x.cannon", bytes.NewReader(data)))
}

func TestLocalStore(t *testing.T) {
	runStoreSuite(t, NewLocal(t.TempDir()))
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemory())
}

func TestLocalStore_AtomicPut(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewLocal(dir)

	require.NoError(t, store.Put(ctx, "m.cannon", strings.NewReader("snapshot")))

	// No temp leftovers, and the listing hides in-flight names.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "m.cannon", entries[0].Name())
}

func TestLocalStore_NestedNames(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(t.TempDir())

	require.NoError(t, store.Put(ctx, "apogee/dr17/v3.cannon", strings.NewReader("snap")))

	names, err := store.List(ctx, "apogee/")
	require.NoError(t, err)
	require.Equal(t, []string{"apogee/dr17/v3.cannon"}, names)

	require.Equal(t, filepath.Join(store.root, "apogee", "dr17", "v3.cannon"), store.Path("apogee/dr17/v3.cannon"))
}

func TestLocalStore_ListEmptyRoot(t *testing.T) {
	store := NewLocal(filepath.Join(t.TempDir(), "never-created"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, names)
}
