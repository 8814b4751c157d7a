package cannon

// Spectrum is one observed (or predicted) spectrum: per-pixel flux and
// inverse variance. IVar = 0 masks a pixel; masked flux may be garbage.
type Spectrum struct {
	Flux []float64
	IVar []float64
}

// NewSpectrum pairs flux with its inverse variances, checking only that the
// two line up; per-pixel data validity is checked where the spectrum is
// consumed, against the model it is used with.
func NewSpectrum(flux, ivar []float64) (Spectrum, error) {
	if len(ivar) != len(flux) {
		return Spectrum{}, &ErrDimensionMismatch{What: "ivar", Expected: len(flux), Actual: len(ivar)}
	}
	return Spectrum{Flux: flux, IVar: ivar}, nil
}

// Pixels returns the spectrum width.
func (s Spectrum) Pixels() int {
	return len(s.Flux)
}
