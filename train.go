package cannon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jsobeck/AnniesLasso/crossval"
	"github.com/jsobeck/AnniesLasso/fit"
	"github.com/jsobeck/AnniesLasso/internal/workerpool"
	"github.com/jsobeck/AnniesLasso/vectorizer"
)

// Train fits a model to the training set: for every pixel, a regularized
// weighted least-squares solve coupled with an intrinsic-scatter fixed point,
// with the regularization strength chosen per pixel by K-fold cross-validation
// over the candidate grid.
//
// Per-pixel trouble (non-convergence, degenerate designs, unresolved
// selection) is recovered locally, flagged on the model and surfaced in the
// Report. Structural problems abort the run with no model. Cancellation stops
// dispatching new work, lets in-flight fits wind down and returns ctx.Err().
func Train(ctx context.Context, ts *TrainingSet, vec vectorizer.Vectorizer, optFns ...func(*TrainOptions)) (*Model, *Report, error) {
	o := applyTrainOptions(optFns)

	if ts == nil {
		return nil, nil, fmt.Errorf("%w: nil training set", ErrInvalidLabelData)
	}
	if vec == nil {
		return nil, nil, fmt.Errorf("%w: nil vectorizer", ErrIncompleteModel)
	}

	started := time.Now()
	model, report, err := train(ctx, ts, vec, o)

	notConverged, degenerate, unresolved := 0, 0, 0
	if report != nil {
		notConverged = int(report.NotConverged.GetCardinality())
		degenerate = int(report.Degenerate.GetCardinality())
		unresolved = int(report.Unresolved.GetCardinality())
	}
	o.Logger.LogTrain(ctx, ts.Pixels(), notConverged, degenerate, unresolved, time.Since(started), err)
	o.Metrics.RecordTrain(ts.Stars(), ts.Pixels(), time.Since(started), err)

	return model, report, err
}

func train(ctx context.Context, ts *TrainingSet, vec vectorizer.Vectorizer, o TrainOptions) (*Model, *Report, error) {
	started := time.Now()

	l, k := vec.Dims()
	if l != ts.Labels() {
		return nil, nil, &ErrDimensionMismatch{What: "vectorizer labels", Expected: ts.Labels(), Actual: l}
	}
	grid := o.LambdaGrid
	if err := validateGrid(grid); err != nil {
		return nil, nil, err
	}

	n, p := ts.Stars(), ts.Pixels()
	crossValidate := len(grid) > 1
	folds := 0
	if crossValidate {
		folds = o.Folds
	}

	o.Logger.LogTrainStart(ctx, n, p, l, k, len(grid), folds)

	// The run's working set: the shared design matrix, its per-fold row
	// gathers, and the pixel-major flux/ivar copies.
	memBytes := 8 * (int64(n)*int64(k)*int64(1+folds) + 2*int64(n)*int64(p))
	if err := o.Controller.AcquireMemory(ctx, memBytes); err != nil {
		return nil, nil, err
	}
	defer o.Controller.ReleaseMemory(memBytes)

	X, err := DesignMatrix(vec, ts.LabelRows())
	if err != nil {
		return nil, nil, err
	}
	fluxCols := pixelColumns(ts.flux, n, p)
	ivarCols := pixelColumns(ts.ivar, n, p)

	pool := workerpool.New(o.Workers)
	defer pool.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		taskErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			taskErr = err
			cancel()
		})
	}

	// Phase 1: score every (pixel, λ, fold) combination as one flat task
	// queue. Each task writes a disjoint slot, so the barrier is the only
	// synchronization.
	choices := make([]crossval.Choice, p)
	if crossValidate {
		phase := time.Now()

		parts, err := crossval.Partition(n, o.Folds, o.Seed)
		if err != nil {
			return nil, nil, err
		}
		cvFolds := crossval.BuildFolds(X, parts)

		scores := make([][][]crossval.Score, p)
		for px := range scores {
			scores[px] = make([][]crossval.Score, len(grid))
			for i := range scores[px] {
				scores[px][i] = make([]crossval.Score, len(cvFolds))
			}
		}

	dispatch:
		for px := 0; px < p; px++ {
			for i := range grid {
				for f := range cvFolds {
					wg.Add(1)
					err := pool.Submit(runCtx, func() {
						defer wg.Done()

						evalStart := time.Now()
						sc, err := crossval.Evaluate(runCtx, cvFolds[f], fluxCols[px], ivarCols[px], grid[i], o.FitOptions)
						o.Metrics.RecordCVEvaluation(time.Since(evalStart), err)
						if err != nil {
							fail(err)
							return
						}
						scores[px][i][f] = sc
					})
					if err != nil {
						wg.Done()
						break dispatch
					}
				}
			}
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if taskErr != nil {
			return nil, nil, translateError(taskErr)
		}

		for px := range choices {
			ch, err := crossval.Select(grid, scores[px])
			if err != nil {
				return nil, nil, err
			}
			choices[px] = ch
		}
		o.Logger.LogPhase(ctx, "cross-validation", time.Since(phase))
	} else {
		for px := range choices {
			choices[px] = crossval.Choice{Index: 0, Lambda: grid[0]}
		}
	}

	// Phase 2: final fit per pixel at its selected λ, into a pre-sized arena.
	phase := time.Now()
	fits := make([]PixelFit, p)

	for px := 0; px < p; px++ {
		wg.Add(1)
		err := pool.Submit(runCtx, func() {
			defer wg.Done()

			fitStart := time.Now()
			res, err := fit.Pixel(runCtx, X, fluxCols[px], ivarCols[px], choices[px].Lambda, o.FitOptions)
			o.Metrics.RecordPixelFit(time.Since(fitStart), res.Converged)

			var flags PixelFlags
			switch {
			case err == nil:
			case errors.Is(err, fit.ErrDidNotConverge):
				flags |= FlagNotConverged
			case errors.Is(err, fit.ErrSingularDesign):
				flags |= FlagDegenerate
			default:
				fail(err)
				return
			}
			if choices[px].Unresolved {
				flags |= FlagUnresolved
			}

			fits[px] = PixelFit{
				Theta:   res.Theta,
				Scatter: res.Scatter,
				Lambda:  res.Lambda,
				Flags:   flags,
			}
		})
		if err != nil {
			wg.Done()
			break
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if taskErr != nil {
		return nil, nil, translateError(taskErr)
	}
	o.Logger.LogPhase(ctx, "final-fit", time.Since(phase))

	model, err := NewModel(vec, fits, func(mo *ModelOptions) {
		mo.Logger = o.Logger
		mo.Metrics = o.Metrics
	})
	if err != nil {
		return nil, nil, err
	}

	return model, newReport(ts, model, grid, folds, fits, time.Since(started)), nil
}

// validateGrid checks the candidate regularization strengths: non-empty,
// finite, non-negative and strictly ascending.
func validateGrid(grid []float64) error {
	if len(grid) == 0 {
		return fmt.Errorf("empty regularization grid")
	}
	prev := math.Inf(-1)
	for i, lambda := range grid {
		if lambda < 0 || math.IsNaN(lambda) || math.IsInf(lambda, 0) {
			return fmt.Errorf("invalid regularization strength %v at index %d", lambda, i)
		}
		if lambda <= prev {
			return fmt.Errorf("regularization grid must be strictly ascending, violated at index %d", i)
		}
		prev = lambda
	}
	return nil
}
