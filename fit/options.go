package fit

// Options bound the iterative parts of a per-pixel fit. The zero value is not
// usable; start from DefaultOptions.
type Options struct {
	// MaxScatterRounds caps the outer coefficient↔scatter alternation.
	MaxScatterRounds int

	// ScatterTol stops the outer loop once |Δs| ≤ ScatterTol·(1+s).
	ScatterTol float64

	// MaxScatter is the upper bracket of the scatter bisection, in flux
	// units. Scatter estimates are clamped here.
	MaxScatter float64

	// MaxSweeps caps coordinate-descent sweeps per coefficient solve.
	MaxSweeps int

	// SweepTol stops coordinate descent once the largest coefficient change
	// in a sweep is ≤ SweepTol·max(1, |θ|_∞).
	SweepTol float64
}

// DefaultOptions returns the fitter bounds used throughout training unless
// overridden.
func DefaultOptions() Options {
	return Options{
		MaxScatterRounds: 50,
		ScatterTol:       1e-8,
		MaxScatter:       10,
		MaxSweeps:        2000,
		SweepTol:         1e-10,
	}
}
