package fit

// Intrinsic scatter handling. The per-star noise model is
// Var_i = 1/ivar_i + s², so the effective weight of star i at scatter s is
// w_i = ivar_i/(1 + ivar_i·s²). The scatter itself solves χ²(s) = dof.

// effectiveWeights computes w_i = ivar_i/(1 + ivar_i·s²), the inverse of the
// per-star variance 1/ivar_i + s².
func (p *pixelProblem) effectiveWeights(s float64) {
	s2 := s * s
	for i, v := range p.ivar {
		if v == 0 {
			p.w[i] = 0
			continue
		}
		p.w[i] = v / (1 + v*s2)
	}
}

// chi2 sums w_i·r_i², skipping zero-weight stars so garbage flux behind a
// masked star cannot poison the total.
func (p *pixelProblem) chi2() float64 {
	sum := 0.0
	for i, w := range p.w {
		if w == 0 {
			continue
		}
		sum += w * p.r[i] * p.r[i]
	}
	return sum
}

// solveScatter finds s ∈ [0, maxScatter] with χ²(s) = dof by bisection.
// χ²(s) = Σ ivar_i·r_i²/(1 + ivar_i·s²) is strictly decreasing in s, so the
// root is unique when it exists; outside the bracket the nearer endpoint is
// returned.
func (p *pixelProblem) solveScatter(dof, maxScatter float64) float64 {
	chi2At := func(s float64) float64 {
		s2 := s * s
		sum := 0.0
		for i, v := range p.ivar {
			if v == 0 {
				continue
			}
			sum += v * p.r[i] * p.r[i] / (1 + v*s2)
		}
		return sum
	}

	if chi2At(0) <= dof {
		return 0
	}
	if chi2At(maxScatter) > dof {
		return maxScatter
	}

	lo, hi := 0.0, maxScatter
	for range 64 {
		mid := 0.5 * (lo + hi)
		if chi2At(mid) > dof {
			lo = mid
		} else {
			hi = mid
		}
	}
	return 0.5 * (lo + hi)
}
