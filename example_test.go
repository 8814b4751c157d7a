package cannon_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	cannon "github.com/jsobeck/AnniesLasso"
	"github.com/jsobeck/AnniesLasso/vectorizer"
)

// exampleVectorizer builds a first-order basis in effective temperature and
// surface gravity: [1, Teff, logg, Teff*logg] after fiducial scaling.
func exampleVectorizer() *vectorizer.Polynomial {
	vec, err := vectorizer.NewPolynomial(
		[]string{"Teff", "logg"},
		"Teff + logg + Teff*logg",
		func(o *vectorizer.PolynomialOptions) {
			o.Fiducials = []float64{5000, 3.5}
			o.Scales = []float64{1000, 1.5}
		},
	)
	if err != nil {
		log.Fatal(err)
	}
	return vec
}

// exampleTrainingSet synthesizes nine noise-free stars from known
// coefficients so the examples stay deterministic.
func exampleTrainingSet(vec *vectorizer.Polynomial, coeffs [][]float64) *cannon.TrainingSet {
	var labels [][]float64
	for _, teff := range []float64{4200, 5000, 5800} {
		for _, logg := range []float64{1.5, 3.0, 4.5} {
			labels = append(labels, []float64{teff, logg})
		}
	}

	pixels := len(coeffs)
	flux := make([][]float64, len(labels))
	ivar := make([][]float64, len(labels))
	for s, lbl := range labels {
		basis, err := vec.Evaluate(lbl)
		if err != nil {
			log.Fatal(err)
		}
		flux[s] = make([]float64, pixels)
		ivar[s] = make([]float64, pixels)
		for p := range coeffs {
			for k, c := range coeffs[p] {
				flux[s][p] += c * basis[k]
			}
			ivar[s][p] = 1e4
		}
	}

	ts, err := cannon.NewTrainingSet(labels, flux, ivar)
	if err != nil {
		log.Fatal(err)
	}
	return ts
}

// Example_train fits a model to synthetic spectra and recovers the
// coefficients that generated them.
func Example_train() {
	vec := exampleVectorizer()
	coeffs := [][]float64{
		{1.00, 0.50, -0.25, 0.10},
		{0.80, -0.30, 0.15, 0.00},
	}
	ts := exampleTrainingSet(vec, coeffs)

	model, report, err := cannon.Train(context.Background(), ts, vec)
	if err != nil {
		log.Fatal(err)
	}
	defer model.Close()

	fmt.Printf("clean: %v\n", report.Clean())
	fmt.Printf("pixel 0 Teff coefficient: %.2f\n", model.Theta(0)[1])
	// Output:
	// clean: true
	// pixel 0 Teff coefficient: 0.50
}

// Example_builder configures a run with the fluent builder.
func Example_builder() {
	vec := exampleVectorizer()
	coeffs := [][]float64{{1.00, 0.50, -0.25, 0.10}}
	ts := exampleTrainingSet(vec, coeffs)

	model, report, err := cannon.New(vec).
		WithLambda(0).
		WithWorkers(2).
		Train(context.Background(), ts)
	if err != nil {
		log.Fatal(err)
	}
	defer model.Close()

	fmt.Printf("pixels: %d clean: %v\n", model.Pixels(), report.Clean())
	// Output: pixels: 1 clean: true
}

// Example_infer runs a trained model backwards: given an observed spectrum,
// recover the labels that generated it.
func Example_infer() {
	vec := exampleVectorizer()
	coeffs := [][]float64{
		{1.00, 0.50, -0.25, 0.10},
		{0.80, -0.30, 0.15, 0.05},
		{1.20, 0.10, 0.40, -0.20},
	}
	ts := exampleTrainingSet(vec, coeffs)

	model, _, err := cannon.Train(context.Background(), ts, vec)
	if err != nil {
		log.Fatal(err)
	}
	defer model.Close()

	// A star the model never saw.
	truth := []float64{5400, 2.6}
	spec, err := model.Predict(truth)
	if err != nil {
		log.Fatal(err)
	}

	res, err := model.Infer(context.Background(), spec)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Teff: %.0f logg: %.1f converged: %v\n", res.Labels[0], res.Labels[1], res.Converged)
	// Output: Teff: 5400 logg: 2.6 converged: true
}

// Example_persistence saves a trained model and memory-maps it back.
func Example_persistence() {
	vec := exampleVectorizer()
	coeffs := [][]float64{{1.00, 0.50, -0.25, 0.10}}
	ts := exampleTrainingSet(vec, coeffs)

	model, _, err := cannon.Train(context.Background(), ts, vec)
	if err != nil {
		log.Fatal(err)
	}
	defer model.Close()

	dir, err := os.MkdirTemp("", "cannon-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "model.cnn")
	if err := model.SaveToFile(path); err != nil {
		log.Fatal(err)
	}

	mapped, err := cannon.OpenModelMmap(path)
	if err != nil {
		log.Fatal(err)
	}
	defer mapped.Close()

	fmt.Printf("pixels: %d terms: %d\n", mapped.Pixels(), mapped.Terms())
	// Output: pixels: 1 terms: 4
}
