package cannon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsobeck/AnniesLasso/fit"
	"github.com/jsobeck/AnniesLasso/testutil"
)

func TestBuilder_Immutable(t *testing.T) {
	base := New(testutil.TwoLabelVectorizer())

	a := base.WithLambda(0.5)
	b := base.WithLambda(2.5).WithFolds(8)

	var oa, ob, obase TrainOptions
	oa = DefaultTrainOptions()
	a.apply(&oa)
	ob = DefaultTrainOptions()
	b.apply(&ob)
	obase = DefaultTrainOptions()
	base.apply(&obase)

	assert.Equal(t, []float64{0.5}, oa.LambdaGrid)
	assert.Equal(t, []float64{2.5}, ob.LambdaGrid)
	assert.Equal(t, 8, ob.Folds)

	// The base builder never picked up either branch.
	assert.Equal(t, []float64{0}, obase.LambdaGrid)
	assert.Equal(t, 4, obase.Folds)
}

func TestBuilder_GridCopied(t *testing.T) {
	grid := []float64{1e-4, 1e-2}
	b := New(testutil.TwoLabelVectorizer()).WithLambdaGrid(grid)
	grid[0] = 99

	o := DefaultTrainOptions()
	b.apply(&o)
	assert.Equal(t, []float64{1e-4, 1e-2}, o.LambdaGrid)
}

func TestBuilder_OverridesCompose(t *testing.T) {
	fo := fit.DefaultOptions()
	fo.MaxSweeps = 123

	seedA := New(testutil.TwoLabelVectorizer()).
		WithGeometricGrid(1e-3, 1e3, 7).
		WithFolds(5).
		WithSeed(77).
		WithWorkers(3).
		WithFitOptions(fo)

	o := DefaultTrainOptions()
	seedA.apply(&o)

	require.Len(t, o.LambdaGrid, 7)
	assert.InDelta(t, 1e-3, o.LambdaGrid[0], 1e-12)
	assert.InDelta(t, 1e3, o.LambdaGrid[6], 1e-9)
	assert.Equal(t, 5, o.Folds)
	assert.Equal(t, int64(77), o.Seed)
	assert.Equal(t, 3, o.Workers)
	assert.Equal(t, 123, o.FitOptions.MaxSweeps)
}

func TestBuilder_BadGeometricGridSurfacesAtTrain(t *testing.T) {
	ts, _, _ := synthSet(t, 1, 10, 3)

	_, _, err := New(testutil.TwoLabelVectorizer()).
		WithGeometricGrid(10, 1, 5). // min above max
		Train(context.Background(), ts)
	require.Error(t, err)
}

func TestBuilder_TrainMatchesFunctional(t *testing.T) {
	ts, _, _ := synthSet(t, 13, 30, 4)
	vec := testutil.TwoLabelVectorizer()
	ctx := context.Background()

	m1, _, err := New(vec).WithLambda(0).Train(ctx, ts)
	require.NoError(t, err)
	defer m1.Close()

	m2, _, err := Train(ctx, ts, vec)
	require.NoError(t, err)
	defer m2.Close()

	for p := 0; p < m1.Pixels(); p++ {
		assert.Equal(t, m1.Theta(p), m2.Theta(p), "pixel %d", p)
	}
}
