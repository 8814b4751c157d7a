// Package crossval chooses per-pixel regularization strengths by K-fold
// cross-validation.
//
// The pieces are deliberately small and pure: Partition assigns stars to
// held-out folds deterministically from a seed, GeometricGrid spans candidate
// λ values, Evaluate runs one (λ, fold) fit-and-score, and Select aggregates
// the scores into a choice. Run composes them sequentially for one pixel;
// the training orchestrator instead flattens every (pixel, λ, fold) triple
// into one work queue and calls the same pieces, so both paths select
// identical strengths.
package crossval
