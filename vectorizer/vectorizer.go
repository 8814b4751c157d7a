package vectorizer

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Vectorizer maps a label vector to the basis vector of the per-pixel linear
// model. Implementations must be pure and deterministic: for a fixed
// configuration, Evaluate returns the same K values for the same labels on
// every call, and Jacobian is the exact derivative of Evaluate.
type Vectorizer interface {
	// Evaluate returns the K-dimensional basis vector for the given labels.
	Evaluate(labels []float64) ([]float64, error)

	// Jacobian returns the K×L matrix of partial derivatives of the basis
	// vector with respect to the labels, evaluated at the given labels.
	Jacobian(labels []float64) (*mat.Dense, error)

	// Dims returns the label dimensionality L and the basis dimensionality K.
	Dims() (labels, terms int)

	// Config returns a serializable description sufficient to rebuild the
	// vectorizer via FromConfig.
	Config() Config
}

// Fiducialed is implemented by vectorizers that carry a natural center point
// in label space. The inference engine uses it as the default initial guess.
type Fiducialed interface {
	Fiducials() []float64
}

// Config is the portable description of a vectorizer. It is stored inside
// model snapshots so that a loaded model rebuilds the exact basis it was
// trained with.
type Config struct {
	Type      string    `json:"type"`
	Labels    []string  `json:"labels"`
	Fiducials []float64 `json:"fiducials"`
	Scales    []float64 `json:"scales"`
	Terms     string    `json:"terms"`
}

// Equal reports whether two configurations describe the same vectorizer.
func (c Config) Equal(o Config) bool {
	if c.Type != o.Type || c.Terms != o.Terms {
		return false
	}
	if len(c.Labels) != len(o.Labels) {
		return false
	}
	for i := range c.Labels {
		if c.Labels[i] != o.Labels[i] {
			return false
		}
	}
	if len(c.Fiducials) != len(o.Fiducials) || len(c.Scales) != len(o.Scales) {
		return false
	}
	for i := range c.Fiducials {
		if c.Fiducials[i] != o.Fiducials[i] {
			return false
		}
	}
	for i := range c.Scales {
		if c.Scales[i] != o.Scales[i] {
			return false
		}
	}
	return true
}

// builders maps a Config.Type to its constructor. Populated by init
// functions of the concrete implementations.
var builders = map[string]func(Config) (Vectorizer, error){}

// Register makes a vectorizer type constructible via FromConfig. It is meant
// to be called from init functions and is not safe for concurrent use.
func Register(typ string, build func(Config) (Vectorizer, error)) {
	builders[typ] = build
}

// FromConfig rebuilds a vectorizer from its portable description.
func FromConfig(cfg Config) (Vectorizer, error) {
	build, ok := builders[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown vectorizer type %q", cfg.Type)
	}
	return build(cfg)
}
