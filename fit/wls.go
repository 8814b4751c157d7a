package fit

import (
	"gonum.org/v1/gonum/mat"
)

// solveWLS solves XᵀWX·θ = XᵀWy exactly via Cholesky on the normal
// equations. Fails with ErrSingularDesign when the weighted design is
// rank-deficient.
func (p *pixelProblem) solveWLS(theta []float64) error {
	a := mat.NewSymDense(p.k, nil)
	b := make([]float64, p.k)

	for c := 0; c < p.k; c++ {
		colC := p.col(c)
		for d := c; d < p.k; d++ {
			colD := p.col(d)
			sum := 0.0
			for i, w := range p.w {
				if w == 0 {
					continue
				}
				sum += w * colC[i] * colD[i]
			}
			a.SetSym(c, d, sum)
		}

		sum := 0.0
		for i, w := range p.w {
			if w == 0 {
				continue
			}
			sum += w * colC[i] * p.flux[i]
		}
		b[c] = sum
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return ErrSingularDesign
	}

	sol := mat.NewVecDense(p.k, nil)
	if err := chol.SolveVecTo(sol, mat.NewVecDense(p.k, b)); err != nil {
		return ErrSingularDesign
	}

	copy(theta, sol.RawVector().Data)
	return nil
}
