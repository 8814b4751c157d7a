package crossval

import (
	"fmt"
	"math"
)

// GeometricGrid returns count λ candidates spaced geometrically from min to
// max inclusive, ascending. count = 1 yields just min.
func GeometricGrid(min, max float64, count int) ([]float64, error) {
	if count < 1 {
		return nil, fmt.Errorf("grid count must be positive, got %d", count)
	}
	if min <= 0 || math.IsNaN(min) || math.IsInf(min, 0) {
		return nil, fmt.Errorf("grid minimum must be positive and finite, got %v", min)
	}
	if max < min || math.IsNaN(max) || math.IsInf(max, 0) {
		return nil, fmt.Errorf("grid maximum %v must be at least the minimum %v", max, min)
	}

	grid := make([]float64, count)
	if count == 1 {
		grid[0] = min
		return grid, nil
	}

	step := math.Pow(max/min, 1/float64(count-1))
	v := min
	for i := range grid {
		grid[i] = v
		v *= step
	}
	grid[count-1] = max

	return grid, nil
}
