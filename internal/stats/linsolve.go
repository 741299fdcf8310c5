package stats

import (
	"errors"
	"math"
)

// PivotEpsilon is the smallest pivot magnitude accepted before a system is declared singular.
const PivotEpsilon = 1e-8

// ErrSingular reports that no usable pivot remained during elimination.
var ErrSingular = errors.New("stats: singular system")

// SolveLinear solves a·x = b by Gaussian elimination with partial pivoting.
// a must be square with len(b) rows; inputs are not modified.
func SolveLinear(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	if len(a) != n {
		return nil, ErrLengthMismatch
	}
	// augmented matrix [a | b]
	m := make([][]float64, n)
	for i := range a {
		if len(a[i]) != n {
			return nil, ErrLengthMismatch
		}
		row := make([]float64, n+1)
		copy(row, a[i])
		row[n] = b[i]
		m[i] = row
	}

	for col := 0; col < n; col++ {
		pivot := col
		best := math.Abs(m[col][col])
		for r := col + 1; r < n; r++ {
			if v := math.Abs(m[r][col]); v > best {
				best = v
				pivot = r
			}
		}
		if best < PivotEpsilon || math.IsNaN(best) {
			return nil, ErrSingular
		}
		m[col], m[pivot] = m[pivot], m[col]
		for r := col + 1; r < n; r++ {
			f := m[r][col] / m[col][col]
			if f == 0 {
				continue
			}
			for c := col; c <= n; c++ {
				m[r][c] -= f * m[col][c]
			}
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := m[i][n]
		for j := i + 1; j < n; j++ {
			sum -= m[i][j] * x[j]
		}
		x[i] = sum / m[i][i]
	}
	return x, nil
}
