package crossval

import (
	"context"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/jsobeck/AnniesLasso/fit"
)

// Partition assigns the integers [0,n) to folds disjoint held-out sets by
// shuffling with the given seed and dealing round-robin, so fold sizes differ
// by at most one. The same (n, folds, seed) triple always produces the same
// partition.
func Partition(n, folds int, seed int64) ([][]int, error) {
	if folds < 2 {
		return nil, fmt.Errorf("at least 2 folds required, got %d", folds)
	}
	if folds > n {
		return nil, fmt.Errorf("cannot split %d stars into %d folds", n, folds)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)

	parts := make([][]int, folds)
	for i, star := range perm {
		f := i % folds
		parts[f] = append(parts[f], star)
	}
	return parts, nil
}

// Fold couples a held-out index set with the design-matrix rows gathered for
// its two sides. Folds are built once per training run and shared read-only
// across pixels and λ candidates.
type Fold struct {
	Train []int
	Hold  []int

	XTrain *mat.Dense
	XHold  *mat.Dense
}

// BuildFolds materializes the train/hold design matrices for every held-out
// set in parts.
func BuildFolds(X *mat.Dense, parts [][]int) []Fold {
	n, k := X.Dims()

	folds := make([]Fold, len(parts))
	for f, hold := range parts {
		held := make(map[int]struct{}, len(hold))
		for _, i := range hold {
			held[i] = struct{}{}
		}

		train := make([]int, 0, n-len(hold))
		for i := 0; i < n; i++ {
			if _, ok := held[i]; !ok {
				train = append(train, i)
			}
		}

		folds[f] = Fold{
			Train:  train,
			Hold:   append([]int(nil), hold...),
			XTrain: gatherRows(X, train, k),
			XHold:  gatherRows(X, hold, k),
		}
	}
	return folds
}

func gatherRows(X *mat.Dense, idx []int, k int) *mat.Dense {
	out := mat.NewDense(len(idx), k, nil)
	row := make([]float64, k)
	for r, i := range idx {
		mat.Row(row, i, X)
		out.SetRow(r, row)
	}
	return out
}

// Gather selects vals at the given star indices.
func Gather(vals []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for j, i := range idx {
		out[j] = vals[i]
	}
	return out
}

// Run performs the full cross-validation loop for one pixel sequentially:
// every (λ, fold) pair is evaluated and the winning λ selected. The training
// orchestrator parallelizes the identical computation; Run is the reference
// path and the convenient entry point for single-pixel callers.
func Run(ctx context.Context, folds []Fold, flux, ivar []float64, grid []float64, opts fit.Options) (Choice, [][]Score, error) {
	scores := make([][]Score, len(grid))
	for i, lambda := range grid {
		scores[i] = make([]Score, len(folds))
		for f, fold := range folds {
			sc, err := Evaluate(ctx, fold, flux, ivar, lambda, opts)
			if err != nil {
				return Choice{}, nil, err
			}
			scores[i][f] = sc
		}
	}

	choice, err := Select(grid, scores)
	if err != nil {
		return Choice{}, nil, err
	}
	return choice, scores, nil
}
