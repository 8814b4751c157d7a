package cannon

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrainingSet(t *testing.T) {
	labels := [][]float64{{5000, 3.5}, {4500, 2.0}}
	flux := [][]float64{{1, 0.9, 0.8}, {1, 0.95, 0.85}}
	ivar := [][]float64{{100, 100, 100}, {100, 100, 100}}

	ts, err := NewTrainingSet(labels, flux, ivar)
	require.NoError(t, err)
	assert.Equal(t, 2, ts.Stars())
	assert.Equal(t, 2, ts.Labels())
	assert.Equal(t, 3, ts.Pixels())
}

func TestNewTrainingSet_ShapeErrors(t *testing.T) {
	labels := [][]float64{{5000, 3.5}, {4500, 2.0}}
	flux := [][]float64{{1, 0.9}, {1, 0.95}}
	ivar := [][]float64{{100, 100}, {100, 100}}

	var dim *ErrDimensionMismatch

	_, err := NewTrainingSet(labels[:1], flux, ivar)
	require.ErrorAs(t, err, &dim)

	_, err = NewTrainingSet([][]float64{{5000, 3.5}, {4500}}, flux, ivar)
	require.ErrorAs(t, err, &dim)

	_, err = NewTrainingSet(labels, [][]float64{{1, 0.9}, {1}}, ivar)
	require.ErrorAs(t, err, &dim)

	_, err = NewTrainingSet(labels, flux, [][]float64{{100, 100}, {100}})
	require.ErrorAs(t, err, &dim)

	_, err = NewTrainingSet(nil, nil, nil)
	require.ErrorIs(t, err, ErrInvalidLabelData)
}

func TestNewTrainingSet_DataValidation(t *testing.T) {
	mk := func() ([][]float64, [][]float64, [][]float64) {
		return [][]float64{{5000, 3.5}},
			[][]float64{{1, 0.9}},
			[][]float64{{100, 100}}
	}

	labels, flux, ivar := mk()
	labels[0][1] = math.NaN()
	_, err := NewTrainingSet(labels, flux, ivar)
	require.ErrorIs(t, err, ErrInvalidLabelData)

	labels, flux, ivar = mk()
	ivar[0][0] = -1
	_, err = NewTrainingSet(labels, flux, ivar)
	require.ErrorIs(t, err, ErrInvalidLabelData)

	labels, flux, ivar = mk()
	flux[0][1] = math.Inf(1)
	_, err = NewTrainingSet(labels, flux, ivar)
	require.ErrorIs(t, err, ErrInvalidLabelData)

	// Garbage flux under a masked pixel is fine; masking is how bad pixels
	// are represented without breaking index alignment.
	labels, flux, ivar = mk()
	ivar[0][1] = 0
	flux[0][1] = math.NaN()
	_, err = NewTrainingSet(labels, flux, ivar)
	require.NoError(t, err)
}

func TestNewSpectrum(t *testing.T) {
	s, err := NewSpectrum([]float64{1, 2}, []float64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Pixels())

	var dim *ErrDimensionMismatch
	_, err = NewSpectrum([]float64{1, 2}, []float64{3})
	require.ErrorAs(t, err, &dim)
}

func TestPixelColumns(t *testing.T) {
	rows := [][]float64{
		{1, 2, 3},
		{4, 5, 6},
	}
	cols := pixelColumns(rows, 2, 3)
	require.Len(t, cols, 3)
	assert.Equal(t, []float64{1, 4}, cols[0])
	assert.Equal(t, []float64{2, 5}, cols[1])
	assert.Equal(t, []float64{3, 6}, cols[2])
}
