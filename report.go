package cannon

import (
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// Report summarizes a training run: the shapes involved, the selector
// configuration, and the pixels that needed recovery. A report accompanies
// every successfully trained model; a run that aborts produces none.
type Report struct {
	// Stars, Pixels, Labels and Terms echo the training-set and basis shape.
	Stars  int
	Pixels int
	Labels int
	Terms  int

	// LambdaGrid is the candidate grid the selector ran over. A single entry
	// means cross-validation was skipped and Folds is zero.
	LambdaGrid []float64
	Folds      int

	// NotConverged holds the pixels whose final scatter fixed point hit its
	// round cap; their stored fits are best partial ones.
	NotConverged *roaring.Bitmap

	// Degenerate holds the pixels whose weighted design carried no usable
	// information; their coefficients are zero.
	Degenerate *roaring.Bitmap

	// Unresolved holds the pixels where no candidate λ converged on every
	// fold and the smallest candidate was used as the fallback.
	Unresolved *roaring.Bitmap

	// Sparsity is the fraction of exactly-zero non-bias coefficients in the
	// trained model.
	Sparsity float64

	// Duration is the wall time of the whole run.
	Duration time.Duration
}

// Clean reports whether every pixel trained without recovery.
func (r *Report) Clean() bool {
	return r.NotConverged.IsEmpty() && r.Degenerate.IsEmpty() && r.Unresolved.IsEmpty()
}

// FlaggedPixels returns the union of all recovered pixels.
func (r *Report) FlaggedPixels() *roaring.Bitmap {
	return roaring.FastOr(r.NotConverged, r.Degenerate, r.Unresolved)
}

func newReport(ts *TrainingSet, model *Model, grid []float64, folds int, fits []PixelFit, duration time.Duration) *Report {
	rep := &Report{
		Stars:        ts.Stars(),
		Pixels:       ts.Pixels(),
		Labels:       ts.Labels(),
		Terms:        model.Terms(),
		LambdaGrid:   append([]float64(nil), grid...),
		Folds:        folds,
		NotConverged: roaring.New(),
		Degenerate:   roaring.New(),
		Unresolved:   roaring.New(),
		Sparsity:     model.Sparsity(),
		Duration:     duration,
	}
	for p, pf := range fits {
		if pf.Flags.Has(FlagNotConverged) {
			rep.NotConverged.AddInt(p)
		}
		if pf.Flags.Has(FlagDegenerate) {
			rep.Degenerate.AddInt(p)
		}
		if pf.Flags.Has(FlagUnresolved) {
			rep.Unresolved.AddInt(p)
		}
	}
	return rep
}
