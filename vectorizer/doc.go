// Package vectorizer expands stellar label vectors into the basis terms of
// the per-pixel linear model.
//
// A vectorizer is a pure, deterministic function from an L-dimensional label
// vector to a K-dimensional basis vector (K includes the leading bias term),
// together with the analytic K×L Jacobian the inference engine linearizes
// against. The polynomial vectorizer implements the classic Cannon basis:
// labels are offset by fiducial values and divided by scale factors, then
// combined into products of powers described by a human-readable string such
// as
//
//	"Teff + logg + feh + Teff^2 + Teff*logg"
//
// Term descriptions round-trip through String, so a vectorizer rebuilt from a
// persisted Config is term-for-term identical to the one that produced it.
package vectorizer
