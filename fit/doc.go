// Package fit solves the per-pixel regularized regression at the heart of
// training.
//
// For one wavelength pixel it minimizes
//
//	Σ_i w_i·(y_i − X_i·θ)² + λ·Σ_{k≥1} |θ_k|
//
// where the effective weights w_i = ivar_i/(1 + ivar_i·s²) fold an intrinsic
// scatter s into the per-star measurement variances. The coefficient solve
// and the scatter estimate are coupled: Pixel alternates a lasso (or, for
// λ = 0, exact weighted least squares) solve of θ with a bisection update of
// s until the scatter stabilizes.
//
// Pixels are fully independent: Pixel reads only its arguments and shares no
// state, so callers may fit many pixels concurrently against one design
// matrix.
package fit
