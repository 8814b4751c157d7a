// Package infer inverts a trained model: given one observed spectrum it
// finds the label vector whose predicted spectrum best matches the
// observation.
//
// The model is linear in its basis terms but nonlinear in labels, so the
// engine runs a damped Gauss–Newton (Levenberg–Marquardt) iteration: at each
// trial point the vectorizer is re-evaluated, the residuals are linearized
// through its Jacobian, and a diagonally-damped normal system proposes a
// step that is accepted only when it lowers the weighted chi-square. The
// iteration is a pure state machine (labels, damping, objective) advanced by
// one step function, with cancellation checked between steps.
//
// Results carry the covariance of the final linearization. Directions the
// spectrum does not constrain are reported with +Inf variance rather than
// failing, so a caller can tell "measured badly" from "not measured".
package infer
