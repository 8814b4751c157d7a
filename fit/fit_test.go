package fit

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/jsobeck/AnniesLasso/testutil"
)

// randomDesign builds an n×k design with a leading bias column, the shape
// every polynomial basis produces.
func randomDesign(rng *testutil.RNG, n, k int) *mat.Dense {
	X := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
		for c := 1; c < k; c++ {
			X.Set(i, c, rng.Uniform(-1, 1))
		}
	}
	return X
}

func pixelFlux(X *mat.Dense, theta []float64) []float64 {
	n, _ := X.Dims()
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for c, t := range theta {
			sum += t * X.At(i, c)
		}
		y[i] = sum
	}
	return y
}

// qrSolve computes the weighted least-squares solution independently of the
// fitter, via QR on sqrt(w)-scaled rows.
func qrSolve(t *testing.T, X *mat.Dense, y, w []float64) []float64 {
	t.Helper()

	n, k := X.Dims()
	A := mat.NewDense(n, k, nil)
	b := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sw := math.Sqrt(w[i])
		for c := 0; c < k; c++ {
			A.Set(i, c, sw*X.At(i, c))
		}
		b.SetVec(i, sw*y[i])
	}

	var qr mat.QR
	qr.Factorize(A)

	sol := mat.NewVecDense(k, nil)
	require.NoError(t, qr.SolveVecTo(sol, false, b))

	return sol.RawVector().Data
}

func TestPixelZeroLambdaMatchesLeastSquares(t *testing.T) {
	rng := testutil.NewRNG(42)
	n, k := 30, 4

	X := randomDesign(rng, n, k)
	truth := []float64{1, -0.2, 0.07, 0.15}
	flux := pixelFlux(X, truth)

	// Heteroscedastic but consistent weights; noise-free flux keeps the
	// scatter at zero so the effective weights stay the raw ivar.
	ivar := make([]float64, n)
	rng.FillUniform(ivar, 100, 10000)

	res, err := Pixel(context.Background(), X, flux, ivar, 0, DefaultOptions())
	require.NoError(t, err)
	require.True(t, res.Converged)
	assert.False(t, res.Degenerate)
	assert.Zero(t, res.Scatter)

	want := qrSolve(t, X, flux, ivar)
	for c := range truth {
		assert.InDelta(t, want[c], res.Theta[c], 1e-9)
		assert.InDelta(t, truth[c], res.Theta[c], 1e-9)
	}
}

func TestPixelZeroLambdaNoisyMatchesLeastSquaresAtFittedScatter(t *testing.T) {
	rng := testutil.NewRNG(7)
	n, k := 200, 4

	X := randomDesign(rng, n, k)
	truth := []float64{0.9, 0.3, -0.1, 0.02}
	flux := pixelFlux(X, truth)

	noise := make([]float64, n)
	rng.FillNormal(noise, 0, 0.1)
	for i := range flux {
		flux[i] += noise[i]
	}
	ivar := make([]float64, n)
	for i := range ivar {
		ivar[i] = 1 / (0.05 * 0.05) // understated errors force scatter > 0
	}

	res, err := Pixel(context.Background(), X, flux, ivar, 0, DefaultOptions())
	require.NoError(t, err)
	require.True(t, res.Converged)
	require.Greater(t, res.Scatter, 0.0)

	w := make([]float64, n)
	s2 := res.Scatter * res.Scatter
	for i, v := range ivar {
		w[i] = v / (1 + v*s2)
	}
	want := qrSolve(t, X, flux, w)
	for c := range want {
		assert.InDelta(t, want[c], res.Theta[c], 1e-6)
	}
}

func TestPixelSparsityMonotoneInLambda(t *testing.T) {
	rng := testutil.NewRNG(1234)
	n, k := 60, 6

	X := randomDesign(rng, n, k)
	truth := []float64{1, 0.4, -0.3, 0, 0, 0}
	flux := pixelFlux(X, truth)
	noise := make([]float64, n)
	rng.FillNormal(noise, 0, 0.02)
	for i := range flux {
		flux[i] += noise[i]
	}
	ivar := make([]float64, n)
	for i := range ivar {
		ivar[i] = 1 / (0.02 * 0.02)
	}

	prev := k + 1
	for _, lambda := range []float64{0, 1e-3, 1e-1, 1, 10, 100, 1e4} {
		res, err := Pixel(context.Background(), X, flux, ivar, lambda, DefaultOptions())
		require.NoError(t, err, "lambda=%v", lambda)

		assert.LessOrEqual(t, res.NonZero, prev, "lambda=%v", lambda)
		prev = res.NonZero

		for _, th := range res.Theta {
			assert.False(t, math.IsNaN(th))
		}
	}
}

func TestPixelAllWeightsZeroIsDegenerate(t *testing.T) {
	rng := testutil.NewRNG(5)
	X := randomDesign(rng, 20, 4)

	flux := make([]float64, 20)
	rng.FillNormal(flux, 1, 0.1)
	ivar := make([]float64, 20)

	res, err := Pixel(context.Background(), X, flux, ivar, 0.5, DefaultOptions())
	require.ErrorIs(t, err, ErrSingularDesign)
	assert.True(t, res.Degenerate)
	assert.Equal(t, make([]float64, 4), res.Theta)
	assert.Zero(t, res.Scatter)

	for _, th := range res.Theta {
		assert.False(t, math.IsNaN(th))
	}
}

func TestPixelRankDeficientDesign(t *testing.T) {
	rng := testutil.NewRNG(9)
	n, k := 15, 4

	X := randomDesign(rng, n, k)
	for i := 0; i < n; i++ {
		X.Set(i, 3, 0) // dead basis column
	}

	flux := make([]float64, n)
	rng.FillNormal(flux, 1, 0.05)
	ivar := make([]float64, n)
	for i := range ivar {
		ivar[i] = 100
	}

	res, err := Pixel(context.Background(), X, flux, ivar, 0, DefaultOptions())
	require.ErrorIs(t, err, ErrSingularDesign)
	assert.True(t, res.Degenerate)
	assert.Equal(t, make([]float64, k), res.Theta)
}

func TestPixelIgnoresZeroWeightStars(t *testing.T) {
	rng := testutil.NewRNG(77)
	n, k := 40, 4

	X := randomDesign(rng, n, k)
	truth := []float64{1, -0.25, 0.1, 0.05}
	flux := pixelFlux(X, truth)
	ivar := make([]float64, n)
	for i := range ivar {
		ivar[i] = 400
	}

	// Corrupt a few stars but mask them out; the fit must not move.
	for _, i := range []int{3, 17, 29} {
		flux[i] = 1e6
		ivar[i] = 0
	}

	res, err := Pixel(context.Background(), X, flux, ivar, 0, DefaultOptions())
	require.NoError(t, err)

	for c := range truth {
		assert.InDelta(t, truth[c], res.Theta[c], 1e-9)
	}
}

func TestPixelRecoversIntrinsicScatter(t *testing.T) {
	rng := testutil.NewRNG(2024)
	n, k := 500, 4

	X := randomDesign(rng, n, k)
	truth := []float64{1, 0.2, -0.15, 0.08}
	flux := pixelFlux(X, truth)

	const (
		sigmaMeas = 0.05
		sTrue     = 0.05
	)
	total := math.Sqrt(sigmaMeas*sigmaMeas + sTrue*sTrue)
	noise := make([]float64, n)
	rng.FillNormal(noise, 0, total)
	for i := range flux {
		flux[i] += noise[i]
	}
	ivar := make([]float64, n)
	for i := range ivar {
		ivar[i] = 1 / (sigmaMeas * sigmaMeas)
	}

	res, err := Pixel(context.Background(), X, flux, ivar, 0, DefaultOptions())
	require.NoError(t, err)
	require.True(t, res.Converged)

	assert.InDelta(t, sTrue, res.Scatter, 0.25*sTrue)
	assert.InDelta(t, res.DOF, res.Chi2, 0.2*res.DOF)
}

func TestPixelLargeLambdaKeepsOnlyBias(t *testing.T) {
	rng := testutil.NewRNG(11)
	n, k := 50, 5

	X := randomDesign(rng, n, k)
	truth := []float64{0.8, 0.1, -0.05, 0.02, 0.01}
	flux := pixelFlux(X, truth)
	ivar := make([]float64, n)
	for i := range ivar {
		ivar[i] = 1e4
	}

	res, err := Pixel(context.Background(), X, flux, ivar, 1e9, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, res.NonZero)
	assert.NotZero(t, res.Theta[0])
}

func TestPixelDidNotConverge(t *testing.T) {
	rng := testutil.NewRNG(3)
	n, k := 100, 4

	X := randomDesign(rng, n, k)
	truth := []float64{1, 0.3, -0.2, 0.1}
	flux := pixelFlux(X, truth)
	noise := make([]float64, n)
	rng.FillNormal(noise, 0, 0.2)
	for i := range flux {
		flux[i] += noise[i]
	}
	ivar := make([]float64, n)
	for i := range ivar {
		ivar[i] = 1e4 // grossly understated errors -> scatter must grow
	}

	opts := DefaultOptions()
	opts.MaxScatterRounds = 1

	res, err := Pixel(context.Background(), X, flux, ivar, 0, opts)
	require.ErrorIs(t, err, ErrDidNotConverge)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Rounds)
	assert.NotEqual(t, make([]float64, k), res.Theta, "partial result expected")
}

func TestPixelContextCancellation(t *testing.T) {
	rng := testutil.NewRNG(8)
	X := randomDesign(rng, 30, 4)
	flux := make([]float64, 30)
	ivar := make([]float64, 30)
	for i := range ivar {
		flux[i] = 1
		ivar[i] = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Pixel(ctx, X, flux, ivar, 0.1, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPixelInputValidation(t *testing.T) {
	rng := testutil.NewRNG(6)
	X := randomDesign(rng, 10, 3)
	good := make([]float64, 10)
	ivar := make([]float64, 10)
	for i := range ivar {
		ivar[i] = 1
	}

	t.Run("flux length", func(t *testing.T) {
		var dim *ErrDimensionMismatch
		_, err := Pixel(context.Background(), X, good[:5], ivar, 0, DefaultOptions())
		require.ErrorAs(t, err, &dim)
		assert.Equal(t, "flux", dim.What)
	})

	t.Run("ivar length", func(t *testing.T) {
		_, err := Pixel(context.Background(), X, good, ivar[:4], 0, DefaultOptions())
		assert.Error(t, err)
	})

	t.Run("negative lambda", func(t *testing.T) {
		_, err := Pixel(context.Background(), X, good, ivar, -1, DefaultOptions())
		assert.Error(t, err)
	})

	t.Run("negative ivar", func(t *testing.T) {
		bad := append([]float64(nil), ivar...)
		bad[2] = -5
		_, err := Pixel(context.Background(), X, good, bad, 0, DefaultOptions())
		assert.Error(t, err)
	})
}
