package cannon

import (
	"errors"
	"fmt"

	"github.com/jsobeck/AnniesLasso/fit"
	"github.com/jsobeck/AnniesLasso/infer"
	"github.com/jsobeck/AnniesLasso/persistence"
	"github.com/jsobeck/AnniesLasso/vectorizer"
)

var (
	// ErrInvalidLabelData is returned when labels, flux or inverse variances
	// carry non-finite values where finite values are required.
	ErrInvalidLabelData = errors.New("invalid label data")

	// ErrFitDidNotConverge is returned when a pixel's scatter fixed point hit
	// its round cap. Training recovers it per pixel; it escapes only from
	// direct fitting calls.
	ErrFitDidNotConverge = errors.New("fit did not converge")

	// ErrSingularDesign is returned when a pixel's weighted design is
	// rank-deficient, e.g. every star is masked there.
	ErrSingularDesign = errors.New("singular design")

	// ErrIncompleteModel is returned when a model is assembled with missing
	// or inconsistent per-pixel fits.
	ErrIncompleteModel = errors.New("incomplete model")

	// ErrIncompatibleModel is returned when a snapshot's geometry, format or
	// vectorizer configuration does not match what the caller expects.
	ErrIncompatibleModel = errors.New("incompatible model")

	// ErrInferenceDidNotConverge is returned when label inference exhausts
	// its iteration budget; the best-so-far result accompanies it.
	ErrInferenceDidNotConverge = errors.New("inference did not converge")

	// ErrIllPosedSpectrum is returned when every pixel of a spectrum carries
	// zero weight, so no labels can be inferred.
	ErrIllPosedSpectrum = errors.New("ill-posed spectrum")
)

// ErrDimensionMismatch indicates a shape disagreement between labels, flux,
// inverse variances, the vectorizer or a model.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	What     string
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: %s: expected %d, got %d", e.What, e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// translateError normalizes subpackage errors into the root taxonomy so
// callers only ever match the sentinels and types above.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Convergence and conditioning.
	if errors.Is(err, fit.ErrDidNotConverge) {
		return fmt.Errorf("%w: %w", ErrFitDidNotConverge, err)
	}
	if errors.Is(err, fit.ErrSingularDesign) {
		return fmt.Errorf("%w: %w", ErrSingularDesign, err)
	}
	if errors.Is(err, infer.ErrDidNotConverge) {
		return fmt.Errorf("%w: %w", ErrInferenceDidNotConverge, err)
	}
	if errors.Is(err, infer.ErrIllPosed) {
		return fmt.Errorf("%w: %w", ErrIllPosedSpectrum, err)
	}

	// Shape normalization.
	var fdm *fit.ErrDimensionMismatch
	if errors.As(err, &fdm) {
		return &ErrDimensionMismatch{What: fdm.What, Expected: fdm.Expected, Actual: fdm.Actual, cause: err}
	}
	var idm *infer.ErrDimensionMismatch
	if errors.As(err, &idm) {
		return &ErrDimensionMismatch{What: idm.What, Expected: idm.Expected, Actual: idm.Actual, cause: err}
	}
	var vdm *vectorizer.ErrDimensionMismatch
	if errors.As(err, &vdm) {
		return &ErrDimensionMismatch{What: "labels", Expected: vdm.Expected, Actual: vdm.Actual, cause: err}
	}

	// Data validity.
	var inv *infer.ErrInvalidSpectrum
	if errors.As(err, &inv) {
		return fmt.Errorf("%w: %w", ErrInvalidLabelData, err)
	}

	// Snapshot compatibility.
	var inc *persistence.ErrIncompatible
	if errors.As(err, &inc) {
		return fmt.Errorf("%w: %w", ErrIncompatibleModel, err)
	}
	if errors.Is(err, persistence.ErrInvalidMagic) || errors.Is(err, persistence.ErrInvalidVersion) || errors.Is(err, persistence.ErrChecksumMismatch) {
		return fmt.Errorf("%w: %w", ErrIncompatibleModel, err)
	}

	return err
}
