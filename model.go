package cannon

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/jsobeck/AnniesLasso/persistence"
	"github.com/jsobeck/AnniesLasso/vectorizer"
)

// maxPredictedIVar caps the predicted inverse variance of pixels whose
// fitted intrinsic scatter is zero or tiny.
const maxPredictedIVar = 1e12

// PixelFlags mark per-pixel training outcomes.
type PixelFlags uint8

const (
	// FlagDegenerate marks a pixel whose weighted design carried no usable
	// information; its coefficients are zero and inference ignores it.
	FlagDegenerate PixelFlags = 1 << iota

	// FlagNotConverged marks a pixel whose scatter fixed point hit its
	// round cap; the stored fit is the best partial one.
	FlagNotConverged

	// FlagUnresolved marks a pixel where no regularization candidate
	// converged on every fold; the smallest candidate was used.
	FlagUnresolved
)

// Has reports whether all flags in mask are set.
func (f PixelFlags) Has(mask PixelFlags) bool { return f&mask == mask }

func (f PixelFlags) String() string {
	if f == 0 {
		return "ok"
	}
	var parts []string
	if f.Has(FlagDegenerate) {
		parts = append(parts, "degenerate")
	}
	if f.Has(FlagNotConverged) {
		parts = append(parts, "not-converged")
	}
	if f.Has(FlagUnresolved) {
		parts = append(parts, "unresolved")
	}
	return strings.Join(parts, "|")
}

// PixelFit is the training outcome for one pixel, the unit a Model is
// assembled from.
type PixelFit struct {
	Theta   []float64
	Scatter float64
	Lambda  float64
	Flags   PixelFlags
}

// Model is an immutable trained artifact: per-pixel coefficients, intrinsic
// scatters, chosen regularization strengths and outcome flags, plus the
// vectorizer defining the basis. Accessors return copies or read-only views;
// concurrent use needs no locking.
type Model struct {
	vec      vectorizer.Vectorizer
	coefs    *mat.Dense
	scatters []float64
	lambdas  []float64
	flags    []PixelFlags

	// termPixels[k] holds the pixels whose k-th coefficient is non-zero,
	// the inverted index behind TermPixels and Sparsity.
	termPixels []*roaring.Bitmap

	logger  *Logger
	metrics MetricsCollector
	closer  io.Closer
}

// NewModel assembles a model from per-pixel fits.
//
// Every pixel must carry a coefficient vector of the vectorizer's term count
// and finite, non-negative scatter and regularization values; anything
// missing or inconsistent fails with an error wrapping ErrIncompleteModel.
// Inference must never silently treat an absent pixel as zero contribution.
// Inputs are copied; the caller keeps ownership.
func NewModel(vec vectorizer.Vectorizer, pixels []PixelFit, optFns ...func(*ModelOptions)) (*Model, error) {
	mo := applyModelOptions(optFns)

	if vec == nil {
		return nil, fmt.Errorf("%w: nil vectorizer", ErrIncompleteModel)
	}
	p := len(pixels)
	if p == 0 {
		return nil, fmt.Errorf("%w: no pixel fits", ErrIncompleteModel)
	}
	_, k := vec.Dims()

	data := make([]float64, p*k)
	scatters := make([]float64, p)
	lambdas := make([]float64, p)
	flags := make([]PixelFlags, p)

	for i, pf := range pixels {
		if pf.Theta == nil {
			return nil, fmt.Errorf("%w: missing fit for pixel %d", ErrIncompleteModel, i)
		}
		if len(pf.Theta) != k {
			return nil, fmt.Errorf("%w: pixel %d has %d coefficients, expected %d", ErrIncompleteModel, i, len(pf.Theta), k)
		}
		for c, t := range pf.Theta {
			if math.IsNaN(t) || math.IsInf(t, 0) {
				return nil, fmt.Errorf("%w: pixel %d coefficient %d is %v", ErrIncompleteModel, i, c, t)
			}
		}
		if pf.Scatter < 0 || math.IsNaN(pf.Scatter) || math.IsInf(pf.Scatter, 0) {
			return nil, fmt.Errorf("%w: pixel %d scatter is %v", ErrIncompleteModel, i, pf.Scatter)
		}
		if pf.Lambda < 0 || math.IsNaN(pf.Lambda) || math.IsInf(pf.Lambda, 0) {
			return nil, fmt.Errorf("%w: pixel %d lambda is %v", ErrIncompleteModel, i, pf.Lambda)
		}

		copy(data[i*k:(i+1)*k], pf.Theta)
		scatters[i] = pf.Scatter
		lambdas[i] = pf.Lambda
		flags[i] = pf.Flags
	}

	m := &Model{
		vec:      vec,
		coefs:    mat.NewDense(p, k, data),
		scatters: scatters,
		lambdas:  lambdas,
		flags:    flags,
		logger:   mo.Logger,
		metrics:  mo.Metrics,
	}
	m.termPixels = buildTermPixels(m.coefs)
	return m, nil
}

func buildTermPixels(coefs *mat.Dense) []*roaring.Bitmap {
	p, k := coefs.Dims()
	out := make([]*roaring.Bitmap, k)
	for c := range out {
		out[c] = roaring.New()
	}
	for i := 0; i < p; i++ {
		row := coefs.RawRowView(i)
		for c, v := range row {
			if v != 0 {
				out[c].AddInt(i)
			}
		}
	}
	return out
}

// Pixels returns the spectrum width P.
func (m *Model) Pixels() int {
	p, _ := m.coefs.Dims()
	return p
}

// Terms returns the basis size K.
func (m *Model) Terms() int {
	_, k := m.coefs.Dims()
	return k
}

// Labels returns the label-vector width L.
func (m *Model) Labels() int {
	l, _ := m.vec.Dims()
	return l
}

// Vectorizer returns the basis expansion the model was fitted against.
func (m *Model) Vectorizer() vectorizer.Vectorizer {
	return m.vec
}

// VectorizerConfig returns the serializable vectorizer description.
func (m *Model) VectorizerConfig() vectorizer.Config {
	return m.vec.Config()
}

// Coefficients returns the P×K coefficient matrix as a read-only view.
// The returned matrix must not be modified.
func (m *Model) Coefficients() mat.Matrix {
	return m.coefs
}

// Theta returns a copy of pixel p's coefficient vector.
func (m *Model) Theta(p int) []float64 {
	out := make([]float64, m.Terms())
	copy(out, m.coefs.RawRowView(p))
	return out
}

// ScatterAt returns the fitted intrinsic scatter of pixel p.
func (m *Model) ScatterAt(p int) float64 {
	return m.scatters[p]
}

// LambdaAt returns the regularization strength pixel p was fitted at.
func (m *Model) LambdaAt(p int) float64 {
	return m.lambdas[p]
}

// FlagsAt returns pixel p's training-outcome flags.
func (m *Model) FlagsAt(p int) PixelFlags {
	return m.flags[p]
}

// DegenerateAt reports whether pixel p carried no information in training.
func (m *Model) DegenerateAt(p int) bool {
	return m.flags[p].Has(FlagDegenerate)
}

// TermPixels returns the set of pixels whose coefficient for basis term k is
// non-zero. The bitmap is cloned; mutating it does not affect the model.
func (m *Model) TermPixels(k int) *roaring.Bitmap {
	return m.termPixels[k].Clone()
}

// Sparsity returns the fraction of exactly-zero non-bias coefficients.
func (m *Model) Sparsity() float64 {
	p, k := m.coefs.Dims()
	if k < 2 {
		return 0
	}
	nonZero := uint64(0)
	for c := 1; c < k; c++ {
		nonZero += m.termPixels[c].GetCardinality()
	}
	total := uint64(p) * uint64(k-1)
	return 1 - float64(nonZero)/float64(total)
}

// DegeneratePixels returns the pixels flagged degenerate.
func (m *Model) DegeneratePixels() *roaring.Bitmap {
	return m.flaggedPixels(FlagDegenerate)
}

// UnresolvedPixels returns the pixels whose regularization strength fell
// back to the smallest candidate.
func (m *Model) UnresolvedPixels() *roaring.Bitmap {
	return m.flaggedPixels(FlagUnresolved)
}

// NotConvergedPixels returns the pixels whose final fit hit its round cap.
func (m *Model) NotConvergedPixels() *roaring.Bitmap {
	return m.flaggedPixels(FlagNotConverged)
}

func (m *Model) flaggedPixels(mask PixelFlags) *roaring.Bitmap {
	out := roaring.New()
	for p, f := range m.flags {
		if f.Has(mask) {
			out.AddInt(p)
		}
	}
	return out
}

// Predict evaluates the model forward: the spectrum it generates at the given
// labels. Predicted inverse variance reflects the fitted intrinsic scatter,
// clamped at maxPredictedIVar, and is zero for degenerate pixels.
func (m *Model) Predict(labels []float64) (Spectrum, error) {
	v, err := m.vec.Evaluate(labels)
	if err != nil {
		return Spectrum{}, translateError(err)
	}

	p, k := m.coefs.Dims()
	flux := make([]float64, p)
	mat.NewVecDense(p, flux).MulVec(m.coefs, mat.NewVecDense(k, v))

	ivar := make([]float64, p)
	for i := range ivar {
		if m.flags[i].Has(FlagDegenerate) {
			continue
		}
		iv := maxPredictedIVar
		if s := m.scatters[i]; s > 0 && 1/(s*s) < maxPredictedIVar {
			iv = 1 / (s * s)
		}
		ivar[i] = iv
	}
	return Spectrum{Flux: flux, IVar: ivar}, nil
}

// Close releases resources held by memory-mapped models. It is a no-op for
// models built in memory and is safe to call more than once.
func (m *Model) Close() error {
	if m.closer == nil {
		return nil
	}
	err := m.closer.Close()
	m.closer = nil
	return err
}

// Snapshot extracts the model into its serializable form. All storage is
// copied; the snapshot does not alias the model.
func (m *Model) Snapshot() *persistence.Snapshot {
	p, k := m.coefs.Dims()

	flags := make([]uint8, p)
	for i, f := range m.flags {
		flags[i] = uint8(f)
	}

	termPixels := make([]*roaring.Bitmap, k)
	for c := range termPixels {
		termPixels[c] = m.termPixels[c].Clone()
	}

	return &persistence.Snapshot{
		Pixels:       p,
		Terms:        k,
		Labels:       m.Labels(),
		Coefficients: append([]float64(nil), m.coefs.RawMatrix().Data...),
		Scatters:     append([]float64(nil), m.scatters...),
		Lambdas:      append([]float64(nil), m.lambdas...),
		Flags:        flags,
		Vectorizer:   m.vec.Config(),
		TermPixels:   termPixels,
	}
}

// Save writes the model's snapshot to w.
func (m *Model) Save(w io.Writer, optFns ...func(*persistence.Options)) error {
	started := time.Now()

	cw := &countingWriter{w: w}
	err := persistence.SaveModel(cw, m.Snapshot(), optFns...)

	m.metrics.RecordSnapshotSave(cw.n, time.Since(started), err)
	return translateError(err)
}

// SaveToFile writes the model's snapshot to path with an atomic
// write-temp-then-rename, so a crash never leaves a torn file behind.
func (m *Model) SaveToFile(path string, optFns ...func(*persistence.Options)) error {
	started := time.Now()

	err := persistence.SaveModelToFile(path, m.Snapshot(), optFns...)

	var bytes int64
	if err == nil {
		if fi, statErr := os.Stat(path); statErr == nil {
			bytes = fi.Size()
		}
	}
	m.logger.LogSnapshotSave(context.Background(), path, err)
	m.metrics.RecordSnapshotSave(bytes, time.Since(started), err)
	return translateError(err)
}

// LoadModelOptions configure model loading.
type LoadModelOptions struct {
	// ExpectedVectorizer, when set, fails the load with ErrIncompatibleModel
	// if the stored basis configuration differs from it.
	ExpectedVectorizer *vectorizer.Config

	// Logger receives snapshot and inference logs. Nil disables logging.
	Logger *Logger

	// Metrics receives snapshot and inference metrics. Nil disables collection.
	Metrics MetricsCollector
}

// WithExpectedVectorizer returns a load option pinning the basis the snapshot
// must have been trained with.
func WithExpectedVectorizer(cfg vectorizer.Config) func(*LoadModelOptions) {
	return func(o *LoadModelOptions) {
		o.ExpectedVectorizer = &cfg
	}
}

func applyLoadModelOptions(optFns []func(*LoadModelOptions)) LoadModelOptions {
	var o LoadModelOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.Logger == nil {
		o.Logger = NoopLogger()
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	return o
}

func (o LoadModelOptions) persistenceOptions() []func(*persistence.LoadOptions) {
	if o.ExpectedVectorizer == nil {
		return nil
	}
	return []func(*persistence.LoadOptions){
		persistence.WithExpectedVectorizer(*o.ExpectedVectorizer),
	}
}

// LoadModel reads a model snapshot from r.
func LoadModel(r io.Reader, optFns ...func(*LoadModelOptions)) (*Model, error) {
	o := applyLoadModelOptions(optFns)
	started := time.Now()

	cr := &countingReader{r: r}
	m, err := func() (*Model, error) {
		snap, err := persistence.LoadModel(cr, o.persistenceOptions()...)
		if err != nil {
			return nil, err
		}
		return modelFromSnapshot(snap, nil, o)
	}()

	o.Metrics.RecordSnapshotLoad(cr.n, time.Since(started), err)
	if err != nil {
		return nil, translateError(err)
	}
	return m, nil
}

// LoadModelFromFile reads a model snapshot from disk into memory.
func LoadModelFromFile(path string, optFns ...func(*LoadModelOptions)) (*Model, error) {
	o := applyLoadModelOptions(optFns)
	started := time.Now()

	m, err := func() (*Model, error) {
		snap, err := persistence.LoadModelFromFile(path, o.persistenceOptions()...)
		if err != nil {
			return nil, err
		}
		return modelFromSnapshot(snap, nil, o)
	}()

	o.Logger.LogSnapshotLoad(context.Background(), path, err)
	o.Metrics.RecordSnapshotLoad(fileSize(path), time.Since(started), err)
	if err != nil {
		return nil, translateError(err)
	}
	return m, nil
}

// OpenModelMmap memory-maps an uncompressed snapshot, sharing the coefficient
// storage with the page cache instead of heap-copying it. The model must be
// Closed to release the mapping. Compressed snapshots fail with
// persistence.ErrCompressedSnapshot; use LoadModelFromFile for those.
func OpenModelMmap(path string, optFns ...func(*LoadModelOptions)) (*Model, error) {
	o := applyLoadModelOptions(optFns)
	started := time.Now()

	m, err := func() (*Model, error) {
		snap, closer, err := persistence.OpenModelMmap(path, o.persistenceOptions()...)
		if err != nil {
			return nil, err
		}
		m, err := modelFromSnapshot(snap, closer, o)
		if err != nil {
			closer.Close()
			return nil, err
		}
		return m, nil
	}()

	o.Logger.LogSnapshotLoad(context.Background(), path, err)
	o.Metrics.RecordSnapshotLoad(fileSize(path), time.Since(started), err)
	if err != nil {
		return nil, translateError(err)
	}
	return m, nil
}

// modelFromSnapshot rebuilds the immutable artifact around snapshot storage.
// The snapshot's slices are adopted, not copied, which is what makes the mmap
// path zero-copy for the numeric sections.
func modelFromSnapshot(snap *persistence.Snapshot, closer io.Closer, o LoadModelOptions) (*Model, error) {
	vec, err := vectorizer.FromConfig(snap.Vectorizer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncompatibleModel, err)
	}

	l, k := vec.Dims()
	if k != snap.Terms {
		return nil, fmt.Errorf("%w: vectorizer spans %d terms, snapshot stores %d", ErrIncompatibleModel, k, snap.Terms)
	}
	if l != snap.Labels {
		return nil, fmt.Errorf("%w: vectorizer takes %d labels, snapshot stores %d", ErrIncompatibleModel, l, snap.Labels)
	}

	flags := make([]PixelFlags, snap.Pixels)
	for i, f := range snap.Flags {
		flags[i] = PixelFlags(f)
	}

	m := &Model{
		vec:      vec,
		coefs:    mat.NewDense(snap.Pixels, snap.Terms, snap.Coefficients),
		scatters: snap.Scatters,
		lambdas:  snap.Lambdas,
		flags:    flags,
		logger:   o.Logger,
		metrics:  o.Metrics,
		closer:   closer,
	}
	if snap.TermPixels != nil {
		m.termPixels = snap.TermPixels
	} else {
		m.termPixels = buildTermPixels(m.coefs)
	}
	return m, nil
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}
