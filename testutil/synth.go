package testutil

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/jsobeck/AnniesLasso/vectorizer"
)

// TwoLabelVectorizer returns the fixed quadratic-cross vectorizer used by
// the end-to-end fixtures: labels (Teff, logg), basis
// [1, Teff, logg, Teff*logg], K = 4.
func TwoLabelVectorizer() *vectorizer.Polynomial {
	vec, err := vectorizer.NewPolynomial(
		[]string{"Teff", "logg"},
		"Teff + logg + Teff*logg",
		func(o *vectorizer.PolynomialOptions) {
			o.Fiducials = []float64{5000, 3.5}
			o.Scales = []float64{1000, 1.5}
		},
	)
	if err != nil {
		panic(fmt.Sprintf("testutil: building fixture vectorizer: %v", err))
	}
	return vec
}

// Labels draws n label vectors uniformly from the box [lo,hi] per dimension.
func (r *RNG) Labels(n int, lo, hi []float64) [][]float64 {
	if len(lo) != len(hi) {
		panic("testutil: lo/hi length mismatch")
	}
	data := make([]float64, n*len(lo))
	out := make([][]float64, n)
	for i := range out {
		row := data[i*len(lo) : (i+1)*len(lo)]
		for j := range row {
			row[j] = r.Uniform(lo[j], hi[j])
		}
		out[i] = row
	}
	return out
}

// Coeffs draws a P×K coefficient table with entries in [-scale, scale) and
// a bias column pinned near 1 (continuum-normalized flux).
func (r *RNG) Coeffs(pixels, terms int, scale float64) [][]float64 {
	out := make([][]float64, pixels)
	for p := range out {
		row := make([]float64, terms)
		row[0] = 1 + r.Uniform(-0.05, 0.05)
		for k := 1; k < terms; k++ {
			row[k] = r.Uniform(-scale, scale)
		}
		out[p] = row
	}
	return out
}

// SparseCoeffs is Coeffs with only the bias and the first active non-bias
// terms populated; the remaining columns are exactly zero.
func (r *RNG) SparseCoeffs(pixels, terms, active int, scale float64) [][]float64 {
	out := r.Coeffs(pixels, terms, scale)
	for _, row := range out {
		for k := 1 + active; k < len(row); k++ {
			row[k] = 0
		}
	}
	return out
}

// DesignMatrix applies the vectorizer to every label vector, panicking on
// fixture errors so tests stay terse.
func DesignMatrix(vec vectorizer.Vectorizer, labels [][]float64) *mat.Dense {
	_, k := vec.Dims()
	X := mat.NewDense(len(labels), k, nil)
	for i, lab := range labels {
		row, err := vec.Evaluate(lab)
		if err != nil {
			panic(fmt.Sprintf("testutil: evaluating fixture labels: %v", err))
		}
		X.SetRow(i, row)
	}
	return X
}

// NoiseFreeFlux synthesizes flux[star][pixel] = X[star]·θ[pixel] from a
// design matrix and a per-pixel coefficient table.
func NoiseFreeFlux(X *mat.Dense, coeffs [][]float64) [][]float64 {
	n, k := X.Dims()
	flux := make([][]float64, n)
	for i := range flux {
		row := make([]float64, len(coeffs))
		for p, theta := range coeffs {
			if len(theta) != k {
				panic("testutil: coefficient row length mismatch")
			}
			sum := 0.0
			for c, t := range theta {
				sum += t * X.At(i, c)
			}
			row[p] = sum
		}
		flux[i] = row
	}
	return flux
}

// ConstIVar returns an n×p inverse-variance table filled with v.
func ConstIVar(n, p int, v float64) [][]float64 {
	data := make([]float64, n*p)
	for i := range data {
		data[i] = v
	}
	out := make([][]float64, n)
	for i := range out {
		out[i] = data[i*p : (i+1)*p]
	}
	return out
}

// AddNoise perturbs flux in place with Gaussian noise of the given sigma and
// returns the matching constant inverse-variance table.
func (r *RNG) AddNoise(flux [][]float64, sigma float64) [][]float64 {
	for _, row := range flux {
		for i := range row {
			row[i] += sigma * r.Normal()
		}
	}
	if len(flux) == 0 {
		return nil
	}
	return ConstIVar(len(flux), len(flux[0]), 1/(sigma*sigma))
}

// Column extracts pixel p across stars: out[i] = table[i][p].
func Column(table [][]float64, p int) []float64 {
	out := make([]float64, len(table))
	for i, row := range table {
		out[i] = row[p]
	}
	return out
}
