package cannon

import (
	"context"

	"github.com/jsobeck/AnniesLasso/crossval"
	"github.com/jsobeck/AnniesLasso/fit"
	"github.com/jsobeck/AnniesLasso/resource"
	"github.com/jsobeck/AnniesLasso/vectorizer"
)

// New creates a fluent builder for a training run over the given basis.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration. This ensures thread-safety and prevents accidental
// state sharing. Unset knobs fall back to DefaultTrainOptions.
//
// Example:
//
//	model, report, err := cannon.New(vec).
//	    WithGeometricGrid(1e-2, 1e4, 7).
//	    WithFolds(4).
//	    WithWorkers(8).
//	    Train(ctx, ts)
func New(vec vectorizer.Vectorizer) Builder {
	return Builder{vec: vec}
}

// Builder is an immutable fluent builder for training runs.
// Each method returns a new builder with the updated configuration.
type Builder struct {
	vec        vectorizer.Vectorizer
	grid       []float64
	gridErr    error
	folds      int
	seed       *int64
	workers    int
	fitOptions *fit.Options
	controller *resource.Controller
	logger     *Logger
	metrics    MetricsCollector
}

// WithLambdaGrid sets the candidate regularization strengths, ascending.
// A single candidate skips cross-validation.
func (b Builder) WithLambdaGrid(grid []float64) Builder {
	b.grid = append([]float64(nil), grid...)
	b.gridErr = nil
	return b
}

// WithLambda fixes a single regularization strength, skipping
// cross-validation entirely.
func (b Builder) WithLambda(lambda float64) Builder {
	b.grid = []float64{lambda}
	b.gridErr = nil
	return b
}

// WithGeometricGrid sets count candidates spaced geometrically from min to
// max inclusive. Invalid bounds surface as an error from Train.
func (b Builder) WithGeometricGrid(min, max float64, count int) Builder {
	b.grid, b.gridErr = crossval.GeometricGrid(min, max, count)
	return b
}

// WithFolds sets the cross-validation fold count.
// Default: 4. Must satisfy 2 <= folds <= stars when a multi-candidate grid
// is in play.
func (b Builder) WithFolds(folds int) Builder {
	b.folds = folds
	return b
}

// WithSeed sets the fold-partition shuffle seed for reproducible runs.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = &seed
	return b
}

// WithWorkers sets the fitting pool size. <= 0 uses GOMAXPROCS.
func (b Builder) WithWorkers(n int) Builder {
	b.workers = n
	return b
}

// WithFitOptions replaces the per-pixel fitter caps and tolerances.
func (b Builder) WithFitOptions(opts fit.Options) Builder {
	b.fitOptions = &opts
	return b
}

// WithController attaches a resource controller budgeting the run's
// working-set memory.
func (b Builder) WithController(rc *resource.Controller) Builder {
	b.controller = rc
	return b
}

// WithLogger sets the structured logger for run tracing.
func (b Builder) WithLogger(l *Logger) Builder {
	b.logger = l
	return b
}

// WithMetrics sets the metrics collector for monitoring.
func (b Builder) WithMetrics(mc MetricsCollector) Builder {
	b.metrics = mc
	return b
}

// Train runs the configured training. See Train for semantics.
func (b Builder) Train(ctx context.Context, ts *TrainingSet) (*Model, *Report, error) {
	if b.gridErr != nil {
		return nil, nil, b.gridErr
	}
	return Train(ctx, ts, b.vec, b.apply)
}

func (b Builder) apply(o *TrainOptions) {
	if b.grid != nil {
		o.LambdaGrid = b.grid
	}
	if b.folds > 0 {
		o.Folds = b.folds
	}
	if b.seed != nil {
		o.Seed = *b.seed
	}
	if b.workers > 0 {
		o.Workers = b.workers
	}
	if b.fitOptions != nil {
		o.FitOptions = *b.fitOptions
	}
	if b.controller != nil {
		o.Controller = b.controller
	}
	if b.logger != nil {
		o.Logger = b.logger
	}
	if b.metrics != nil {
		o.Metrics = b.metrics
	}
}
