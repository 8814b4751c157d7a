package fit

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDidNotConverge is returned when the scatter fixed point (or a
	// coordinate-descent solve inside it) hits its iteration cap. The
	// accompanying Result is the best partial fit, never fabricated values.
	ErrDidNotConverge = errors.New("fit did not converge")

	// ErrSingularDesign is returned when the effective weighted design is
	// rank-deficient for this pixel, e.g. when every star carries zero
	// weight. The accompanying Result is zeroed and flagged degenerate.
	ErrSingularDesign = errors.New("singular design")
)

// ErrDimensionMismatch indicates inputs whose shapes disagree.
type ErrDimensionMismatch struct {
	What     string
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("%s length mismatch: expected %d, got %d", e.What, e.Expected, e.Actual)
}

// Result is the outcome of one per-pixel fit.
type Result struct {
	// Theta is the K-dimensional coefficient vector. Exact zeros are
	// expected for λ > 0.
	Theta []float64

	// Scatter is the fitted intrinsic scatter s ≥ 0.
	Scatter float64

	// Lambda echoes the regularization strength the fit ran at.
	Lambda float64

	// Chi2 is Σ w_i·r_i² at the final coefficients and effective weights.
	Chi2 float64

	// DOF is the effective degrees of freedom the scatter equation targeted.
	DOF float64

	// NonZero counts non-zero coefficients.
	NonZero int

	// Rounds is the number of coefficient↔scatter alternations executed.
	Rounds int

	// Converged is true when both the scatter fixed point and every inner
	// coefficient solve met their tolerances.
	Converged bool

	// Degenerate marks a pixel whose design carried no usable information.
	Degenerate bool
}

// Pixel fits the coefficients and intrinsic scatter of a single pixel.
//
// X is the N×K design matrix shared across pixels; flux and ivar are the
// pixel's per-star measurements, with ivar[i] = 0 marking stars that carry no
// information here. lambda ≥ 0 sets the L1 penalty on the non-bias
// coefficients; lambda = 0 is solved exactly by weighted least squares.
//
// The returned Result is meaningful even when err is ErrDidNotConverge
// (partial fit, Converged false) or ErrSingularDesign (zeroed, Degenerate
// true). Any other error means no fit was attempted.
func Pixel(ctx context.Context, X *mat.Dense, flux, ivar []float64, lambda float64, opts Options) (Result, error) {
	n, k := X.Dims()
	res := Result{Lambda: lambda}

	if len(flux) != n {
		return res, &ErrDimensionMismatch{What: "flux", Expected: n, Actual: len(flux)}
	}
	if len(ivar) != n {
		return res, &ErrDimensionMismatch{What: "ivar", Expected: n, Actual: len(ivar)}
	}
	if lambda < 0 || math.IsNaN(lambda) || math.IsInf(lambda, 0) {
		return res, fmt.Errorf("invalid regularization strength %v", lambda)
	}
	for i, v := range ivar {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return res, fmt.Errorf("invalid inverse variance %v for star %d", v, i)
		}
	}

	res.Theta = make([]float64, k)

	informative := 0
	for _, v := range ivar {
		if v > 0 {
			informative++
		}
	}
	if informative == 0 {
		res.Degenerate = true
		return res, ErrSingularDesign
	}

	// Scatter degrees of freedom: informative stars minus basis size,
	// floored so starved pixels still get a defined target.
	res.DOF = float64(informative - k)
	if res.DOF < 1 {
		res.DOF = 1
	}

	p := newPixelProblem(X, flux, ivar)

	var (
		s         float64
		converged bool
	)
	for round := 0; round < opts.MaxScatterRounds; round++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Rounds = round + 1

		p.effectiveWeights(s)

		innerOK, err := p.solve(ctx, res.Theta, lambda, opts)
		if err != nil {
			if errors.Is(err, ErrSingularDesign) {
				zero(res.Theta)
				res.Scatter = 0
				res.Degenerate = true
				res.Rounds = round + 1
				return res, ErrSingularDesign
			}
			return res, err
		}

		p.residuals(res.Theta)
		next := p.solveScatter(res.DOF, opts.MaxScatter)

		if math.Abs(next-s) <= opts.ScatterTol*(1+next) {
			s = next
			converged = innerOK
			break
		}
		s = next
	}

	res.Scatter = s
	res.Converged = converged

	p.effectiveWeights(s)
	p.residuals(res.Theta)
	res.Chi2 = p.chi2()
	res.NonZero = countNonZero(res.Theta)

	if !converged {
		return res, ErrDidNotConverge
	}
	return res, nil
}

// pixelProblem holds the per-call scratch state: a column-major copy of the
// design matrix plus weight and residual buffers. It is private to one Pixel
// call, keeping concurrent fits lock-free.
type pixelProblem struct {
	n, k int
	cols []float64 // column-major X, cols[c*n+i]
	flux []float64
	ivar []float64
	w    []float64
	r    []float64
}

func newPixelProblem(X *mat.Dense, flux, ivar []float64) *pixelProblem {
	n, k := X.Dims()
	p := &pixelProblem{
		n:    n,
		k:    k,
		cols: make([]float64, n*k),
		flux: flux,
		ivar: ivar,
		w:    make([]float64, n),
		r:    make([]float64, n),
	}
	for c := 0; c < k; c++ {
		col := p.cols[c*n : (c+1)*n]
		for i := 0; i < n; i++ {
			col[i] = X.At(i, c)
		}
	}
	return p
}

func (p *pixelProblem) col(c int) []float64 {
	return p.cols[c*p.n : (c+1)*p.n]
}

// residuals fills r = y − X·θ.
func (p *pixelProblem) residuals(theta []float64) {
	copy(p.r, p.flux)
	for c, t := range theta {
		if t == 0 {
			continue
		}
		col := p.col(c)
		for i := range p.r {
			p.r[i] -= t * col[i]
		}
	}
}

// solve fits theta in place at the current weights: exact weighted least
// squares for lambda = 0, cyclic coordinate descent otherwise. The bool
// reports whether the solver met its tolerance.
func (p *pixelProblem) solve(ctx context.Context, theta []float64, lambda float64, opts Options) (bool, error) {
	if lambda == 0 {
		if err := p.solveWLS(theta); err != nil {
			return false, err
		}
		return true, nil
	}
	return p.coordinateDescent(ctx, theta, lambda, opts)
}

func countNonZero(theta []float64) int {
	n := 0
	for _, t := range theta {
		if t != 0 {
			n++
		}
	}
	return n
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}
