package crossval

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jsobeck/AnniesLasso/fit"
)

// Score is the outcome of one (λ, fold) evaluation.
type Score struct {
	Lambda float64

	// HeldOutError is the weighted squared prediction error summed over the
	// held-out stars, using the fold fit's scatter in the weights.
	HeldOutError float64

	// Converged reports whether the fold fit converged.
	Converged bool

	// Degenerate reports a fold whose training rows carried no information.
	Degenerate bool
}

// Evaluate fits one pixel on a fold's training rows at the given λ and
// scores the prediction error on the held-out rows. flux and ivar are the
// pixel's full per-star slices; the fold's index sets select the rows.
//
// Per-pixel fit failures (non-convergence, singular design) are folded into
// the Score rather than returned: the selector recovers from them. Only
// structural problems and context cancellation surface as errors.
func Evaluate(ctx context.Context, fold Fold, flux, ivar []float64, lambda float64, opts fit.Options) (Score, error) {
	score := Score{Lambda: lambda}

	res, err := fit.Pixel(ctx, fold.XTrain, Gather(flux, fold.Train), Gather(ivar, fold.Train), lambda, opts)
	switch {
	case err == nil:
		score.Converged = true
	case errors.Is(err, fit.ErrDidNotConverge):
		// Scored anyway; Select prefers fully converged candidates.
	case errors.Is(err, fit.ErrSingularDesign):
		score.Degenerate = true
	default:
		return score, err
	}

	holdFlux := Gather(flux, fold.Hold)
	holdIvar := Gather(ivar, fold.Hold)

	s2 := res.Scatter * res.Scatter
	nh, _ := fold.XHold.Dims()
	for j := 0; j < nh; j++ {
		w := holdIvar[j]
		if w == 0 {
			continue
		}
		w = w / (1 + w*s2)

		pred := 0.0
		for c, t := range res.Theta {
			if t != 0 {
				pred += t * fold.XHold.At(j, c)
			}
		}
		r := holdFlux[j] - pred
		score.HeldOutError += w * r * r
	}

	return score, nil
}

// Choice is the selected regularization strength for one pixel.
type Choice struct {
	Index  int
	Lambda float64

	// Unresolved marks a pixel where no candidate λ converged on every
	// fold; the smallest candidate is chosen as the fallback.
	Unresolved bool
}

// Select aggregates per-λ fold scores and picks the candidate with the
// minimum total held-out error among candidates whose fold fits all
// converged. Ties go to the larger λ, favoring sparser coefficients. When no
// candidate converged everywhere, the smallest λ is chosen and the choice is
// flagged Unresolved.
//
// grid must be ascending and scores[i] must hold the fold scores of grid[i].
func Select(grid []float64, scores [][]Score) (Choice, error) {
	if len(grid) == 0 {
		return Choice{}, fmt.Errorf("empty candidate grid")
	}
	if len(scores) != len(grid) {
		return Choice{}, fmt.Errorf("got scores for %d candidates, expected %d", len(scores), len(grid))
	}

	best := -1
	bestErr := math.Inf(1)
	for i := range grid {
		total := 0.0
		usable := len(scores[i]) > 0
		for _, sc := range scores[i] {
			if !sc.Converged || sc.Degenerate {
				usable = false
				break
			}
			total += sc.HeldOutError
		}
		if !usable || math.IsNaN(total) {
			continue
		}
		if total <= bestErr {
			best = i
			bestErr = total
		}
	}

	if best < 0 {
		return Choice{Index: 0, Lambda: grid[0], Unresolved: true}, nil
	}
	return Choice{Index: best, Lambda: grid[best]}, nil
}
