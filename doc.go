// Package cannon trains data-driven generative models of stellar spectra and
// inverts them to measure stellar labels.
//
// The model treats each spectrum pixel independently: predicted flux is a
// polynomial expansion of the labels (effective temperature, surface gravity,
// abundances, ...) dotted with per-pixel coefficients, fitted from a training
// set of stars with known labels. Fitting couples an L1-regularized weighted
// least-squares solve with a per-pixel intrinsic scatter, and picks the
// regularization strength per pixel by K-fold cross-validation. Inference
// runs the model backwards: given an observed spectrum, a damped Gauss-Newton
// iteration finds the labels whose predicted spectrum fits best.
//
// # Quick Start
//
// Train from a labelled set of stars:
//
//	vec, _ := vectorizer.NewPolynomialFromOrder([]string{"Teff", "logg", "feh"}, 2)
//	ts, _ := cannon.NewTrainingSet(labels, flux, ivar)
//	model, report, err := cannon.New(vec).
//	    WithGeometricGrid(1e-2, 1e4, 7).
//	    WithFolds(4).
//	    WithWorkers(8).
//	    Train(ctx, ts)
//
// Measure labels for a new spectrum:
//
//	res, err := model.Infer(ctx, cannon.Spectrum{Flux: flux, IVar: ivar})
//	fmt.Println(res.Labels, res.Covariance)
//
// Persist and reload:
//
//	_ = model.SaveToFile("model.cannon")
//	model, _ = cannon.LoadModelFromFile("model.cannon")
//
// # Key Features
//
//   - Per-pixel L1-regularized fits with intrinsic-scatter estimation
//   - Per-pixel cross-validated regularization strength (sparser wins ties)
//   - Embarrassingly parallel training over a fixed worker pool
//   - Immutable trained-model artifact with term-usage bitmap indexes
//   - Levenberg-Marquardt label inference with covariance estimates
//   - Sectioned binary snapshots (CRC-checked, lz4/zstd, mmap zero-copy load)
//   - Model stores for local disk, memory, S3 and MinIO with a manifest
//     catalog and compare-and-swap publishing
package cannon
