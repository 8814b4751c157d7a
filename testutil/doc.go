// Package testutil provides testing utilities for the training and
// inference packages.
//
// This package is intended for use in tests and benchmarks only. It provides
// a seeded thread-safe RNG plus synthetic fixtures: label draws, per-pixel
// coefficient tables, and noise-free or noisy spectra generated from a known
// model, so fits can be checked against ground truth.
//
// # Random Fixtures
//
//	rng := testutil.NewRNG(seed)
//	labels := rng.Labels(50, []float64{4000, 1}, []float64{6500, 5})
//	coeffs := rng.Coeffs(10, 4, 0.1)
//
// # Synthetic Spectra
//
//	X := testutil.DesignMatrix(vec, labels)
//	flux := testutil.NoiseFreeFlux(X, coeffs)
//	ivar := rng.AddNoise(flux, 0.01)
package testutil
