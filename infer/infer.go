package infer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/jsobeck/AnniesLasso/vectorizer"
)

var (
	// ErrDidNotConverge is returned when the iteration budget runs out or the
	// damping stalls before the tolerances are met. The accompanying result
	// holds the best labels found so far.
	ErrDidNotConverge = errors.New("inference did not converge")

	// ErrIllPosed is returned when every pixel of the spectrum carries zero
	// weight, so the data constrain nothing.
	ErrIllPosed = errors.New("ill-posed spectrum")
)

// ErrDimensionMismatch is returned when the spectrum or initial guess does
// not line up with the model geometry.
type ErrDimensionMismatch struct {
	What     string
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: %s: expected %d, got %d", e.What, e.Expected, e.Actual)
}

// ErrInvalidSpectrum is returned when a pixel carries a non-finite flux at
// positive weight, or a negative or non-finite inverse variance.
type ErrInvalidSpectrum struct {
	Pixel int
	Field string
}

func (e *ErrInvalidSpectrum) Error() string {
	return fmt.Sprintf("invalid spectrum: pixel %d: bad %s", e.Pixel, e.Field)
}

// Model is the read-only view of a trained model the engine works against.
type Model interface {
	// Coefficients returns the pixels-by-terms coefficient matrix. The
	// engine treats it as immutable.
	Coefficients() mat.Matrix

	// ScatterAt returns the intrinsic scatter fitted for pixel p.
	ScatterAt(p int) float64

	// DegenerateAt reports whether pixel p carried no information during
	// training. Degenerate pixels are excluded from inference.
	DegenerateAt(p int) bool

	// Vectorizer returns the basis expansion the coefficients were fitted
	// against.
	Vectorizer() vectorizer.Vectorizer
}

// Result is the outcome of a label solve.
type Result struct {
	// Labels is the best-fitting label vector.
	Labels []float64

	// Covariance is the inverse of the weighted Gauss-Newton Hessian at the
	// final labels. When that Hessian is singular the diagonal is +Inf and
	// the off-diagonal entries are zero: the fit ran, but the spectrum does
	// not pin those directions down.
	Covariance *mat.SymDense

	// Chi2 is the weighted chi-square at Labels.
	Chi2 float64

	// DOF is the number of informative pixels minus the number of labels.
	// It can be zero or negative for very sparse spectra.
	DOF int

	// Iterations counts the outer Levenberg-Marquardt iterations performed.
	Iterations int

	// Converged reports whether a tolerance was met before the iteration
	// budget ran out.
	Converged bool
}

// Solve fits labels to a single spectrum.
//
// flux and ivar must have one entry per model pixel. Pixels with zero
// inverse variance, or flagged degenerate in the model, are ignored. The
// returned error is ErrDidNotConverge when a partial result is still
// usable, and ErrIllPosed or a validation error when no fit was possible.
func Solve(ctx context.Context, m Model, flux, ivar []float64, optFns ...func(o *Options)) (*Result, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	prob, err := newProblem(m, flux, ivar, opts)
	if err != nil {
		return nil, err
	}

	start := prob.initialLabels()
	chi2, finite := prob.objective(start)
	if !finite {
		return nil, fmt.Errorf("objective not finite at the starting labels %v", start)
	}

	st := state{labels: start, damping: opts.InitialDamping, chi2: chi2}
	converged := false
	iterations := 0

	for iterations < opts.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, outcome := prob.step(st)
		iterations++

		if outcome == stepTiny {
			converged = true
			break
		}
		if outcome == stepStalled {
			break
		}

		improvement := (st.chi2 - next.chi2) / math.Max(st.chi2, math.SmallestNonzeroFloat64)
		st = next
		if improvement <= opts.RelTol {
			converged = true
			break
		}
	}

	res := &Result{
		Labels:     st.labels,
		Covariance: prob.covariance(st.labels),
		Chi2:       st.chi2,
		DOF:        prob.informative - prob.nLabels,
		Iterations: iterations,
		Converged:  converged,
	}
	if !converged {
		return res, ErrDidNotConverge
	}
	return res, nil
}
