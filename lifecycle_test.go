package cannon_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cannon "github.com/jsobeck/AnniesLasso"
	"github.com/jsobeck/AnniesLasso/manifest"
	"github.com/jsobeck/AnniesLasso/modelstore"
	"github.com/jsobeck/AnniesLasso/persistence"
)

// TestLifecycle walks the full path a production model takes: train, snapshot
// to disk, publish into a store, catalog in a manifest, then resolve, load
// and infer from a cold start - once heap-loaded and once memory-mapped
// through the caching store.
func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	vec := exampleVectorizer()
	coeffs := [][]float64{
		{1.00, 0.50, -0.25, 0.10},
		{0.80, -0.30, 0.15, 0.05},
		{1.20, 0.10, 0.40, -0.20},
		{0.95, 0.00, -0.10, 0.30},
	}
	ts := exampleTrainingSet(vec, coeffs)

	model, report, err := cannon.Train(ctx, ts, vec)
	require.NoError(t, err)
	defer model.Close()
	require.True(t, report.Clean())

	workDir := t.TempDir()
	snapPath := filepath.Join(workDir, "model.cnn")
	require.NoError(t, model.SaveToFile(snapPath))

	// Publish the snapshot into a store.
	store := modelstore.NewLocal(filepath.Join(workDir, "store"))
	f, err := os.Open(snapPath)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "giants/v1.cnn", f))
	require.NoError(t, f.Close())

	// The published copy verifies end to end without being decoded.
	require.NoError(t, persistence.VerifySnapshotFile(nil, store.Path("giants/v1.cnn")))

	// Catalog it.
	ms := manifest.NewStore(filepath.Join(workDir, "manifest"))
	hash, err := manifest.VectorizerHash(nil, model.VectorizerConfig())
	require.NoError(t, err)

	entry, err := ms.Append(manifest.Entry{
		Name:           "giants-v1",
		Snapshot:       "giants/v1.cnn",
		CreatedAt:      time.Now().UTC(),
		Pixels:         model.Pixels(),
		Terms:          model.Terms(),
		Labels:         model.Labels(),
		VectorizerHash: hash,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), entry.ID)

	// Cold start: resolve through the catalog and load.
	cat, err := manifest.NewStore(filepath.Join(workDir, "manifest")).Load()
	require.NoError(t, err)
	resolved, ok := cat.Lookup("giants-v1")
	require.True(t, ok)
	assert.Equal(t, model.Pixels(), resolved.Pixels)
	assert.Equal(t, hash, resolved.VectorizerHash)

	loaded, err := cannon.LoadModelFromFile(
		store.Path(resolved.Snapshot),
		cannon.WithExpectedVectorizer(vec.Config()),
	)
	require.NoError(t, err)
	defer loaded.Close()

	truth := []float64{5600, 4.1}
	spec, err := loaded.Predict(truth)
	require.NoError(t, err)
	res, err := loaded.Infer(ctx, spec)
	require.NoError(t, err)
	require.True(t, res.Converged)
	assert.InDelta(t, truth[0], res.Labels[0], 1e-3)
	assert.InDelta(t, truth[1], res.Labels[1], 1e-5)

	// Mmap path: the caching store pulls from the remote, verifies the
	// download, and hands back a local path fit for mapping.
	cache := modelstore.NewCaching(store, filepath.Join(workDir, "cache"))
	local, err := cache.Fetch(ctx, resolved.Snapshot)
	require.NoError(t, err)

	mapped, err := cannon.OpenModelMmap(local)
	require.NoError(t, err)
	for p := 0; p < model.Pixels(); p++ {
		assert.Equal(t, model.Theta(p), mapped.Theta(p), "pixel %d", p)
	}
	require.NoError(t, mapped.Close())
}
