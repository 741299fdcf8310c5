// Package stats holds the correlation and regression math used to relate ad
// activity to patient acquisition. Every function is pure and never panics on
// short or degenerate series.
package stats

import (
	"math"
	"sort"
)

// LagCorrelationPoint is the correlation of source[i] with target[i+Lag].
type LagCorrelationPoint struct {
	Lag           int     `json:"lag"`
	Correlation   float64 `json:"correlation"`
	PairedSamples int     `json:"paired_samples"`
}

// pairAcc accumulates the running sums behind a Pearson coefficient.
type pairAcc struct {
	n     float64
	sumX  float64
	sumY  float64
	sumXX float64
	sumYY float64
	sumXY float64
}

func (a *pairAcc) add(x, y float64) {
	a.n++
	a.sumX += x
	a.sumY += y
	a.sumXX += x * x
	a.sumYY += y * y
	a.sumXY += x * y
}

func (a *pairAcc) r() float64 {
	denom := math.Sqrt((a.n*a.sumXX - a.sumX*a.sumX) * (a.n*a.sumYY - a.sumY*a.sumY))
	if denom == 0 || math.IsNaN(denom) {
		return 0
	}
	r := (a.n*a.sumXY - a.sumX*a.sumY) / denom
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r
}

// Pearson returns the correlation coefficient of x and y. It returns 0 when the
// lengths differ, the series are empty, or either series is constant.
func Pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}
	var acc pairAcc
	for i := range x {
		acc.add(x[i], y[i])
	}
	return acc.r()
}

// CrossCorrelate sweeps lags in [-maxLag, maxLag] and correlates source[i] with
// target[i+lag]. A lag is reported only when at least two aligned samples exist.
// Points are returned in ascending lag order. Lags that cannot pair two samples
// are never visited, so maxLag may exceed the series length.
func CrossCorrelate(source, target []float64, maxLag int) []LagCorrelationPoint {
	if len(source) == 0 || len(target) == 0 || maxLag < 0 {
		return nil
	}
	if reach := max(len(source), len(target)) - 2; maxLag > reach {
		maxLag = reach
	}
	if maxLag < 0 {
		return nil
	}
	out := make([]LagCorrelationPoint, 0, 2*maxLag+1)
	for lag := -maxLag; lag <= maxLag; lag++ {
		var acc pairAcc
		for i := range source {
			j := i + lag
			if j < 0 || j >= len(target) {
				continue
			}
			acc.add(source[i], target[j])
		}
		if acc.n < 2 {
			continue
		}
		out = append(out, LagCorrelationPoint{Lag: lag, Correlation: acc.r(), PairedSamples: int(acc.n)})
	}
	return out
}

// SortByStrength returns a copy of points ordered by |correlation| descending.
// Ties go to the smaller |lag|, then to the negative lag.
func SortByStrength(points []LagCorrelationPoint) []LagCorrelationPoint {
	out := make([]LagCorrelationPoint, len(points))
	copy(out, points)
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].Correlation), math.Abs(out[j].Correlation)
		if ai != aj {
			return ai > aj
		}
		li, lj := absInt(out[i].Lag), absInt(out[j].Lag)
		if li != lj {
			return li < lj
		}
		return out[i].Lag < out[j].Lag
	})
	return out
}

// BestLag is the strongest point under SortByStrength ordering.
func BestLag(points []LagCorrelationPoint) (LagCorrelationPoint, bool) {
	if len(points) == 0 {
		return LagCorrelationPoint{}, false
	}
	return SortByStrength(points)[0], true
}

// Mean returns the arithmetic mean, or 0 for an empty series.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
