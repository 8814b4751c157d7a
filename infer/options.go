package infer

// Options control the Levenberg-Marquardt iteration.
type Options struct {
	// MaxIterations caps the number of accepted steps before the solve is
	// abandoned with ErrDidNotConverge.
	MaxIterations int

	// RelTol terminates the iteration once an accepted step improves the
	// weighted chi-square by less than RelTol relative to its current value.
	RelTol float64

	// StepTol terminates the iteration once the proposed step becomes
	// negligible relative to the current label vector. This is the exit
	// taken at a minimum, where every larger step is rejected.
	StepTol float64

	// InitialDamping seeds the Marquardt damping parameter.
	InitialDamping float64

	// DampingIncrease multiplies the damping after a rejected step.
	DampingIncrease float64

	// DampingDecrease divides the damping after an accepted step.
	DampingDecrease float64

	// MaxRejects bounds consecutive rejected trial steps within a single
	// iteration before the solve is declared stalled.
	MaxRejects int

	// InitialGuess optionally fixes the starting label vector. When nil the
	// engine starts from the vectorizer fiducials if it exposes them, and
	// from the zero vector otherwise.
	InitialGuess []float64
}

// DefaultOptions returns the tolerances used when an option is left unset.
func DefaultOptions() Options {
	return Options{
		MaxIterations:   100,
		RelTol:          1e-10,
		StepTol:         1e-12,
		InitialDamping:  1e-3,
		DampingIncrease: 2,
		DampingDecrease: 3,
		MaxRejects:      40,
	}
}

// WithInitialGuess returns an option starting the iteration from the given
// label vector instead of the vectorizer fiducials. The slice is copied.
func WithInitialGuess(labels []float64) func(*Options) {
	return func(o *Options) {
		o.InitialGuess = append([]float64(nil), labels...)
	}
}

// WithMaxIterations returns an option capping the number of accepted steps.
func WithMaxIterations(n int) func(*Options) {
	return func(o *Options) {
		o.MaxIterations = n
	}
}
