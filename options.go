package cannon

import (
	"log/slog"

	"github.com/jsobeck/AnniesLasso/fit"
	"github.com/jsobeck/AnniesLasso/resource"
)

// TrainOptions configure a training run. All knobs are explicit; nothing is
// read from ambient state.
type TrainOptions struct {
	// LambdaGrid holds the candidate regularization strengths, ascending.
	// A single-entry grid skips cross-validation and fits every pixel at
	// that strength directly. The default is {0}: exact weighted least
	// squares, no sparsity.
	LambdaGrid []float64

	// Folds is the cross-validation fold count, used when LambdaGrid has
	// more than one candidate. Must satisfy 2 <= Folds <= stars.
	Folds int

	// Seed drives the fold partition shuffle. Equal seeds reproduce
	// identical models.
	Seed int64

	// Workers sets the fitting pool size; <= 0 uses GOMAXPROCS.
	Workers int

	// FitOptions are the per-pixel fitter caps and tolerances.
	FitOptions fit.Options

	// Controller optionally budgets memory for the pixel-major working set.
	// Nil disables resource accounting.
	Controller *resource.Controller

	// Logger receives structured training logs. Nil disables logging.
	Logger *Logger

	// Metrics receives operational metrics. Nil disables collection.
	Metrics MetricsCollector
}

// DefaultTrainOptions returns the options used when a knob is left unset.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		LambdaGrid: []float64{0},
		Folds:      4,
		Seed:       1,
		Workers:    0,
		FitOptions: fit.DefaultOptions(),
		Logger:     NoopLogger(),
		Metrics:    NoopMetrics{},
	}
}

// ModelOptions configure model construction and the inference facade.
type ModelOptions struct {
	// Logger receives structured inference logs. Nil disables logging.
	Logger *Logger

	// Metrics receives inference metrics. Nil disables collection.
	Metrics MetricsCollector
}

// WithLogLevel returns a training option that installs a text logger at the
// given level. Convenience for o.Logger = NewTextLogger(level).
func WithLogLevel(level slog.Level) func(*TrainOptions) {
	return func(o *TrainOptions) {
		o.Logger = NewTextLogger(level)
	}
}

func applyTrainOptions(optFns []func(*TrainOptions)) TrainOptions {
	o := DefaultTrainOptions()
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.Logger == nil {
		o.Logger = NoopLogger()
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	return o
}

func applyModelOptions(optFns []func(*ModelOptions)) ModelOptions {
	o := ModelOptions{
		Logger:  NoopLogger(),
		Metrics: NoopMetrics{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.Logger == nil {
		o.Logger = NoopLogger()
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	return o
}
