package infer

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/jsobeck/AnniesLasso/vectorizer"
)

// minDamping floors the Marquardt parameter after accepted steps so a long
// run of successes cannot drive it to zero before the next reject cycle.
const minDamping = 1e-12

type stepOutcome int

const (
	stepAccepted stepOutcome = iota
	stepTiny
	stepStalled
)

// state is one point of the iteration: where we are, how cautious the next
// proposal is, and how good the fit is.
type state struct {
	labels  []float64
	damping float64
	chi2    float64
}

// problem carries the read-only inputs and geometry of one solve.
type problem struct {
	coefs       mat.Matrix
	vec         vectorizer.Vectorizer
	flux        []float64
	w           []float64 // effective per-pixel weights, zero for excluded pixels
	nPixels     int
	nTerms      int
	nLabels     int
	informative int
	opts        Options
}

func newProblem(m Model, flux, ivar []float64, opts Options) (*problem, error) {
	coefs := m.Coefficients()
	nPixels, nTerms := coefs.Dims()
	vec := m.Vectorizer()
	nLabels, vecTerms := vec.Dims()

	if vecTerms != nTerms {
		return nil, &ErrDimensionMismatch{What: "vectorizer terms", Expected: nTerms, Actual: vecTerms}
	}
	if len(flux) != nPixels {
		return nil, &ErrDimensionMismatch{What: "flux", Expected: nPixels, Actual: len(flux)}
	}
	if len(ivar) != nPixels {
		return nil, &ErrDimensionMismatch{What: "ivar", Expected: nPixels, Actual: len(ivar)}
	}
	if g := opts.InitialGuess; g != nil && len(g) != nLabels {
		return nil, &ErrDimensionMismatch{What: "initial guess", Expected: nLabels, Actual: len(g)}
	}

	p := &problem{
		coefs:   coefs,
		vec:     vec,
		flux:    flux,
		w:       make([]float64, nPixels),
		nPixels: nPixels,
		nTerms:  nTerms,
		nLabels: nLabels,
		opts:    opts,
	}
	for i, v := range ivar {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &ErrInvalidSpectrum{Pixel: i, Field: "ivar"}
		}
		if v == 0 || m.DegenerateAt(i) {
			continue
		}
		if math.IsNaN(flux[i]) || math.IsInf(flux[i], 0) {
			return nil, &ErrInvalidSpectrum{Pixel: i, Field: "flux"}
		}
		s := m.ScatterAt(i)
		p.w[i] = v / (1 + v*s*s)
		p.informative++
	}
	if p.informative == 0 {
		return nil, ErrIllPosed
	}
	return p, nil
}

// initialLabels picks the starting point: an explicit guess, the vectorizer
// fiducials when available, or zero.
func (p *problem) initialLabels() []float64 {
	out := make([]float64, p.nLabels)
	if g := p.opts.InitialGuess; g != nil {
		copy(out, g)
		return out
	}
	if f, ok := p.vec.(vectorizer.Fiducialed); ok {
		copy(out, f.Fiducials())
	}
	return out
}

// objective evaluates the weighted chi-square at labels. The second return
// is false when the value is not finite, which a trial step treats as a
// rejection.
func (p *problem) objective(labels []float64) (float64, bool) {
	v, err := p.vec.Evaluate(labels)
	if err != nil {
		return math.NaN(), false
	}
	model := mat.NewVecDense(p.nPixels, nil)
	model.MulVec(p.coefs, mat.NewVecDense(p.nTerms, v))

	sum := 0.0
	for i, w := range p.w {
		if w == 0 {
			continue
		}
		r := p.flux[i] - model.AtVec(i)
		sum += w * r * r
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return sum, false
	}
	return sum, true
}

// linearize evaluates the model and its label Jacobian at labels, returning
// the weighted normal matrix A = JᵀWJ and gradient g = JᵀWr of the
// chi-square surface around that point.
func (p *problem) linearize(labels []float64) (*mat.SymDense, []float64, error) {
	v, err := p.vec.Evaluate(labels)
	if err != nil {
		return nil, nil, err
	}
	jv, err := p.vec.Jacobian(labels)
	if err != nil {
		return nil, nil, err
	}

	model := mat.NewVecDense(p.nPixels, nil)
	model.MulVec(p.coefs, mat.NewVecDense(p.nTerms, v))

	jac := mat.NewDense(p.nPixels, p.nLabels, nil)
	jac.Mul(p.coefs, jv)

	a := mat.NewSymDense(p.nLabels, nil)
	g := make([]float64, p.nLabels)
	for i, w := range p.w {
		if w == 0 {
			continue
		}
		row := jac.RawRowView(i)
		r := p.flux[i] - model.AtVec(i)
		for c := 0; c < p.nLabels; c++ {
			g[c] += w * row[c] * r
			for d := c; d < p.nLabels; d++ {
				a.SetSym(c, d, a.At(c, d)+w*row[c]*row[d])
			}
		}
	}
	return a, g, nil
}

// step advances the iteration by one accepted Levenberg-Marquardt move, or
// reports that the proposal fell below the step tolerance (the exit taken at
// a minimum) or that the damping schedule ran out of retries.
func (p *problem) step(st state) (state, stepOutcome) {
	a, g, err := p.linearize(st.labels)
	if err != nil {
		return st, stepStalled
	}

	labelNorm := norm(st.labels)
	mu := st.damping
	delta := mat.NewVecDense(p.nLabels, nil)

	for rejects := 0; rejects <= p.opts.MaxRejects; rejects++ {
		if !p.solveDamped(a, g, mu, delta) {
			mu *= p.opts.DampingIncrease
			continue
		}

		if mat.Norm(delta, 2) <= p.opts.StepTol*(labelNorm+p.opts.StepTol) {
			st.damping = mu
			return st, stepTiny
		}

		cand := make([]float64, p.nLabels)
		for c := range cand {
			cand[c] = st.labels[c] + delta.AtVec(c)
		}
		chi2, finite := p.objective(cand)
		if finite && chi2 < st.chi2 {
			return state{
				labels:  cand,
				damping: math.Max(mu/p.opts.DampingDecrease, minDamping),
				chi2:    chi2,
			}, stepAccepted
		}
		mu *= p.opts.DampingIncrease
	}

	st.damping = mu
	return st, stepStalled
}

// solveDamped solves (A + μ·diag(A))·δ = g. Labels with zero curvature are
// pinned at a zero step component, since scaling a zero diagonal can never
// make the system definite.
func (p *problem) solveDamped(a *mat.SymDense, g []float64, mu float64, delta *mat.VecDense) bool {
	n := p.nLabels
	damped := mat.NewSymDense(n, nil)
	rhs := mat.NewVecDense(n, nil)

	for c := 0; c < n; c++ {
		if a.At(c, c) == 0 {
			damped.SetSym(c, c, 1)
			continue
		}
		damped.SetSym(c, c, a.At(c, c)*(1+mu))
		rhs.SetVec(c, g[c])
		for d := c + 1; d < n; d++ {
			if a.At(d, d) == 0 {
				continue
			}
			damped.SetSym(c, d, a.At(c, d))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(damped); !ok {
		return false
	}
	return chol.SolveVecTo(delta, rhs) == nil
}

// covariance inverts the undamped normal matrix at the final labels. A
// singular linearization yields +Inf variances rather than an error: the
// labels are the best available, the spectrum just cannot bound them.
func (p *problem) covariance(labels []float64) *mat.SymDense {
	a, _, err := p.linearize(labels)
	if err != nil {
		return unboundedCovariance(p.nLabels)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return unboundedCovariance(p.nLabels)
	}
	cov := mat.NewSymDense(p.nLabels, nil)
	if err := chol.InverseTo(cov); err != nil {
		return unboundedCovariance(p.nLabels)
	}
	return cov
}

func unboundedCovariance(n int) *mat.SymDense {
	cov := mat.NewSymDense(n, nil)
	for c := 0; c < n; c++ {
		cov.SetSym(c, c, math.Inf(1))
	}
	return cov
}

func norm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
