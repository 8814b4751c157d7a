package fit

import (
	"context"
	"math"
)

// coordinateDescent minimizes the weighted L1-penalized objective by cyclic
// coordinate updates with soft-thresholding. The bias coefficient θ_0 is not
// penalized. theta is updated in place and serves as the warm start across
// scatter rounds. Returns whether the sweep tolerance was met.
func (p *pixelProblem) coordinateDescent(ctx context.Context, theta []float64, lambda float64, opts Options) (bool, error) {
	// Weighted squared column norms; z_c = 0 pins θ_c at zero.
	z := make([]float64, p.k)
	anySupport := false
	for c := 0; c < p.k; c++ {
		col := p.col(c)
		sum := 0.0
		for i, w := range p.w {
			if w == 0 {
				continue
			}
			sum += w * col[i] * col[i]
		}
		z[c] = sum
		if sum > 0 {
			anySupport = true
		}
	}
	if !anySupport {
		return false, ErrSingularDesign
	}

	for c, zc := range z {
		if zc == 0 && theta[c] != 0 {
			theta[c] = 0
		}
	}
	p.residuals(theta)

	threshold := lambda / 2

	for sweep := 0; sweep < opts.MaxSweeps; sweep++ {
		if sweep%64 == 0 {
			if err := ctx.Err(); err != nil {
				return false, err
			}
		}

		maxDelta := 0.0
		maxTheta := 0.0
		for c := 0; c < p.k; c++ {
			if z[c] == 0 {
				continue
			}
			col := p.col(c)

			// rho = Σ w_i·x_ic·(r_i + x_ic·θ_c), the correlation of the
			// column with the residual excluding its own contribution.
			rho := 0.0
			for i, w := range p.w {
				if w == 0 {
					continue
				}
				rho += w * col[i] * p.r[i]
			}
			old := theta[c]
			rho += z[c] * old

			var next float64
			if c == 0 {
				next = rho / z[c]
			} else {
				next = softThreshold(rho, threshold) / z[c]
			}

			if next != old {
				delta := next - old
				for i := range p.r {
					p.r[i] -= delta * col[i]
				}
				theta[c] = next
				if d := math.Abs(delta); d > maxDelta {
					maxDelta = d
				}
			}
			if a := math.Abs(next); a > maxTheta {
				maxTheta = a
			}
		}

		scale := maxTheta
		if scale < 1 {
			scale = 1
		}
		if maxDelta <= opts.SweepTol*scale {
			return true, nil
		}
	}

	return false, nil
}

func softThreshold(x, t float64) float64 {
	switch {
	case x > t:
		return x - t
	case x < -t:
		return x + t
	default:
		return 0
	}
}
