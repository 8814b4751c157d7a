package cannon

import (
	"context"
	"math"
	"time"

	"github.com/jsobeck/AnniesLasso/infer"
)

// Infer runs the model backwards: the labels that best explain the observed
// spectrum. Facade over infer.Solve with errors normalized to the package
// taxonomy; a best-so-far result accompanies ErrInferenceDidNotConverge.
func (m *Model) Infer(ctx context.Context, spec Spectrum, optFns ...func(*infer.Options)) (*infer.Result, error) {
	started := time.Now()

	res, err := infer.Solve(ctx, m, spec.Flux, spec.IVar, optFns...)
	err = translateError(err)

	iterations := 0
	chi2 := math.NaN()
	if res != nil {
		iterations = res.Iterations
		chi2 = res.Chi2
	}
	m.logger.LogInference(ctx, iterations, chi2, err)
	m.metrics.RecordInference(iterations, time.Since(started), err)
	return res, err
}
