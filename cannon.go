package cannon

import (
	"fmt"
	"math"
)

// TrainingSet holds the labelled stars a model is fitted from: N label
// vectors of width L, and N flux and inverse-variance rows of width P
// (star-major). ivar = 0 masks a pixel for that star; masked flux may carry
// any value, including non-finite garbage.
//
// The set takes ownership of the slices passed to NewTrainingSet; callers
// must not mutate them afterwards.
type TrainingSet struct {
	labels [][]float64
	flux   [][]float64
	ivar   [][]float64

	stars     int
	labelDims int
	pixels    int
}

// NewTrainingSet validates shapes and data and wraps them for training.
//
// Shape violations return *ErrDimensionMismatch. Non-finite labels, negative
// or non-finite inverse variances, and non-finite flux at positive inverse
// variance return errors wrapping ErrInvalidLabelData: one malformed star
// must fail loudly up front, not silently corrupt every pixel's fit.
func NewTrainingSet(labels, flux, ivar [][]float64) (*TrainingSet, error) {
	n := len(labels)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty training set", ErrInvalidLabelData)
	}
	if len(flux) != n {
		return nil, &ErrDimensionMismatch{What: "flux rows", Expected: n, Actual: len(flux)}
	}
	if len(ivar) != n {
		return nil, &ErrDimensionMismatch{What: "ivar rows", Expected: n, Actual: len(ivar)}
	}

	l := len(labels[0])
	if l == 0 {
		return nil, fmt.Errorf("%w: star 0 has no labels", ErrInvalidLabelData)
	}
	p := len(flux[0])
	if p == 0 {
		return nil, fmt.Errorf("%w: star 0 has no pixels", ErrInvalidLabelData)
	}

	for i := 0; i < n; i++ {
		if len(labels[i]) != l {
			return nil, &ErrDimensionMismatch{What: fmt.Sprintf("labels for star %d", i), Expected: l, Actual: len(labels[i])}
		}
		if len(flux[i]) != p {
			return nil, &ErrDimensionMismatch{What: fmt.Sprintf("flux for star %d", i), Expected: p, Actual: len(flux[i])}
		}
		if len(ivar[i]) != p {
			return nil, &ErrDimensionMismatch{What: fmt.Sprintf("ivar for star %d", i), Expected: p, Actual: len(ivar[i])}
		}

		for j, v := range labels[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: label %d of star %d is %v", ErrInvalidLabelData, j, i, v)
			}
		}
		for j, v := range ivar[i] {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: ivar of star %d pixel %d is %v", ErrInvalidLabelData, i, j, v)
			}
			if v > 0 {
				if f := flux[i][j]; math.IsNaN(f) || math.IsInf(f, 0) {
					return nil, fmt.Errorf("%w: flux of star %d pixel %d is %v at positive ivar", ErrInvalidLabelData, i, j, f)
				}
			}
		}
	}

	return &TrainingSet{
		labels:    labels,
		flux:      flux,
		ivar:      ivar,
		stars:     n,
		labelDims: l,
		pixels:    p,
	}, nil
}

// Stars returns the number of training stars N.
func (ts *TrainingSet) Stars() int {
	return ts.stars
}

// Labels returns the label-vector width L.
func (ts *TrainingSet) Labels() int {
	return ts.labelDims
}

// Pixels returns the spectrum width P.
func (ts *TrainingSet) Pixels() int {
	return ts.pixels
}

// LabelRows returns the label vectors, star-major. The returned slices are
// the set's own storage and must not be modified.
func (ts *TrainingSet) LabelRows() [][]float64 {
	return ts.labels
}

// pixelColumns transposes a star-major table to pixel-major columns backed
// by one contiguous arena, the layout the per-pixel fitters consume.
func pixelColumns(rows [][]float64, stars, pixels int) [][]float64 {
	backing := make([]float64, stars*pixels)
	cols := make([][]float64, pixels)
	for p := range cols {
		cols[p] = backing[p*stars : (p+1)*stars]
	}
	for i, row := range rows {
		for p, v := range row {
			cols[p][i] = v
		}
	}
	return cols
}
