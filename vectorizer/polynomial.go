package vectorizer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// TypePolynomial is the Config.Type of the polynomial vectorizer.
const TypePolynomial = "polynomial"

func init() {
	Register(TypePolynomial, func(cfg Config) (Vectorizer, error) {
		return NewPolynomial(cfg.Labels, cfg.Terms, func(o *PolynomialOptions) {
			o.Fiducials = cfg.Fiducials
			o.Scales = cfg.Scales
		})
	})
}

// PolynomialOptions configures the label normalization of a polynomial
// vectorizer. Labels enter the basis as (label-fiducial)/scale.
type PolynomialOptions struct {
	// Fiducials are the per-label offsets. Defaults to zeros.
	Fiducials []float64

	// Scales are the per-label divisors. Defaults to ones. Must be finite
	// and non-zero.
	Scales []float64
}

// Polynomial models flux as a linear combination of products of powers of
// normalized labels, with a leading constant term. It is immutable after
// construction and safe for concurrent use.
type Polynomial struct {
	labels    []string
	fiducials []float64
	scales    []float64
	terms     Terms
	desc      string
}

var _ Vectorizer = (*Polynomial)(nil)
var _ Fiducialed = (*Polynomial)(nil)

// NewPolynomial creates a polynomial vectorizer from ordered label names and
// a term description (see ParseTerms for the syntax). The basis dimension is
// 1+len(terms): a constant bias term followed by the described terms.
func NewPolynomial(labels []string, description string, optFns ...func(o *PolynomialOptions)) (*Polynomial, error) {
	opts := PolynomialOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if len(labels) == 0 {
		return nil, fmt.Errorf("at least one label is required")
	}
	seen := make(map[string]struct{}, len(labels))
	for _, name := range labels {
		if name == "" {
			return nil, fmt.Errorf("empty label name")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate label name %q", name)
		}
		seen[name] = struct{}{}
	}

	L := len(labels)

	fiducials := opts.Fiducials
	if fiducials == nil {
		fiducials = make([]float64, L)
	}
	if len(fiducials) != L {
		return nil, fmt.Errorf("fiducials length %d does not match %d labels", len(fiducials), L)
	}
	scales := opts.Scales
	if scales == nil {
		scales = make([]float64, L)
		for i := range scales {
			scales[i] = 1
		}
	}
	if len(scales) != L {
		return nil, fmt.Errorf("scales length %d does not match %d labels", len(scales), L)
	}
	for i := range L {
		if math.IsNaN(fiducials[i]) || math.IsInf(fiducials[i], 0) {
			return nil, fmt.Errorf("non-finite fiducial for label %q", labels[i])
		}
		if scales[i] == 0 || math.IsNaN(scales[i]) || math.IsInf(scales[i], 0) {
			return nil, fmt.Errorf("invalid scale %v for label %q", scales[i], labels[i])
		}
	}

	terms, err := ParseTerms(description, labels)
	if err != nil {
		return nil, err
	}

	p := &Polynomial{
		labels:    append([]string(nil), labels...),
		fiducials: append([]float64(nil), fiducials...),
		scales:    append([]float64(nil), scales...),
		terms:     terms,
	}
	p.desc = terms.Describe(p.labels)

	return p, nil
}

// PolynomialOrderOptions configures NewPolynomialFromOrder.
type PolynomialOrderOptions struct {
	PolynomialOptions

	// CrossTermOrder caps the largest individual power inside cross terms.
	// Negative means order-1.
	CrossTermOrder int
}

// NewPolynomialFromOrder builds the full polynomial basis up to the given
// order, e.g. order 2 over (Teff, logg) yields
// "Teff + logg + Teff^2 + Teff*logg + logg^2".
func NewPolynomialFromOrder(labels []string, order int, optFns ...func(o *PolynomialOrderOptions)) (*Polynomial, error) {
	opts := PolynomialOrderOptions{CrossTermOrder: -1}
	for _, fn := range optFns {
		fn(&opts)
	}

	if order < 1 {
		return nil, fmt.Errorf("order must be at least 1, got %d", order)
	}

	description := BuildTerms(labels, order, opts.CrossTermOrder)

	return NewPolynomial(labels, description, func(o *PolynomialOptions) {
		o.Fiducials = opts.Fiducials
		o.Scales = opts.Scales
	})
}

// Dims returns the label dimensionality L and basis dimensionality K.
func (p *Polynomial) Dims() (labels, terms int) {
	return len(p.labels), 1 + len(p.terms)
}

// LabelNames returns a copy of the ordered label names.
func (p *Polynomial) LabelNames() []string {
	return append([]string(nil), p.labels...)
}

// Fiducials returns a copy of the per-label offsets.
func (p *Polynomial) Fiducials() []float64 {
	return append([]float64(nil), p.fiducials...)
}

// Scales returns a copy of the per-label scale factors.
func (p *Polynomial) Scales() []float64 {
	return append([]float64(nil), p.scales...)
}

// Terms returns a copy of the parsed non-bias terms.
func (p *Polynomial) Terms() Terms {
	return p.terms.clone()
}

// String returns the canonical term description.
func (p *Polynomial) String() string {
	return p.desc
}

// Config returns the portable description of this vectorizer.
func (p *Polynomial) Config() Config {
	return Config{
		Type:      TypePolynomial,
		Labels:    p.LabelNames(),
		Fiducials: p.Fiducials(),
		Scales:    p.Scales(),
		Terms:     p.desc,
	}
}

// Evaluate returns the basis vector [1, t_1(x), ..., t_{K-1}(x)] where x is
// the normalized label vector.
func (p *Polynomial) Evaluate(labels []float64) ([]float64, error) {
	scaled, err := p.normalize(labels)
	if err != nil {
		return nil, err
	}

	out := make([]float64, 1+len(p.terms))
	out[0] = 1
	for t, term := range p.terms {
		v := 1.0
		for _, f := range term {
			v *= power(scaled[f.Index], f.Power)
		}
		out[1+t] = v
	}

	return out, nil
}

// Jacobian returns the K×L matrix d basis / d labels. The bias row is zero;
// for a term ∏ x_i^p_i the derivative with respect to label j is
// p_j·x_j^(p_j-1)·∏_{i≠j} x_i^p_i, divided by the label's scale.
func (p *Polynomial) Jacobian(labels []float64) (*mat.Dense, error) {
	scaled, err := p.normalize(labels)
	if err != nil {
		return nil, err
	}

	L := len(p.labels)
	jac := mat.NewDense(1+len(p.terms), L, nil)
	for t, term := range p.terms {
		for fi, f := range term {
			d := f.Power * power(scaled[f.Index], f.Power-1) / p.scales[f.Index]
			for gi, g := range term {
				if gi == fi {
					continue
				}
				d *= power(scaled[g.Index], g.Power)
			}
			jac.Set(1+t, f.Index, d)
		}
	}

	return jac, nil
}

func (p *Polynomial) normalize(labels []float64) ([]float64, error) {
	if len(labels) != len(p.labels) {
		return nil, &ErrDimensionMismatch{Expected: len(p.labels), Actual: len(labels)}
	}
	scaled := make([]float64, len(labels))
	for i, v := range labels {
		scaled[i] = (v - p.fiducials[i]) / p.scales[i]
	}
	return scaled, nil
}

// ErrDimensionMismatch indicates a label vector of the wrong length.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("label dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func power(x, p float64) float64 {
	switch p {
	case 0:
		return 1
	case 1:
		return x
	case 2:
		return x * x
	case 3:
		return x * x * x
	default:
		return math.Pow(x, p)
	}
}
