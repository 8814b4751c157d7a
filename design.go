package cannon

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/jsobeck/AnniesLasso/vectorizer"
)

// DesignMatrix applies the vectorizer to every label vector, producing the
// N×K design matrix shared by all per-pixel fits.
//
// Label vectors of the wrong width fail with *ErrDimensionMismatch.
// Non-finite labels, and basis values the vectorizer blows up to non-finite,
// fail with ErrInvalidLabelData. Pure transform, no side effects.
func DesignMatrix(vec vectorizer.Vectorizer, labels [][]float64) (*mat.Dense, error) {
	l, k := vec.Dims()
	n := len(labels)
	if n == 0 {
		return nil, fmt.Errorf("%w: no label vectors", ErrInvalidLabelData)
	}

	X := mat.NewDense(n, k, nil)
	for i, lab := range labels {
		if len(lab) != l {
			return nil, &ErrDimensionMismatch{What: fmt.Sprintf("labels for star %d", i), Expected: l, Actual: len(lab)}
		}
		for j, v := range lab {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: label %d of star %d is %v", ErrInvalidLabelData, j, i, v)
			}
		}

		row, err := vec.Evaluate(lab)
		if err != nil {
			return nil, translateError(err)
		}
		if len(row) != k {
			return nil, &ErrDimensionMismatch{What: fmt.Sprintf("basis for star %d", i), Expected: k, Actual: len(row)}
		}
		for c, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: basis term %d of star %d is %v", ErrInvalidLabelData, c, i, v)
			}
		}
		X.SetRow(i, row)
	}
	return X, nil
}
