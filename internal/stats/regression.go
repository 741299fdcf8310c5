package stats

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientRows is returned when fewer than maxLag+2 complete lag windows exist.
	ErrInsufficientRows = errors.New("stats: too few rows for distributed-lag fit")
	// ErrLengthMismatch is returned when paired inputs differ in length.
	ErrLengthMismatch = errors.New("stats: input length mismatch")
)

// DistributedLagResult is an OLS fit of target[t] = β0 + Σ βl·source[t-l], l = 0..MaxLag.
// Coefficients[0] is the intercept; Coefficients[1+l] is the lag-l weight.
type DistributedLagResult struct {
	MaxLag       int       `json:"max_lag"`
	Coefficients []float64 `json:"coefficients"`
	TotalEffect  float64   `json:"total_effect"`
	RSquared     float64   `json:"r_squared"`
	SampleSize   int       `json:"sample_size"`
}

// Intercept returns β0.
func (r DistributedLagResult) Intercept() float64 {
	if len(r.Coefficients) == 0 {
		return 0
	}
	return r.Coefficients[0]
}

// LagWeight returns βl, or 0 for a lag outside the fitted window.
func (r DistributedLagResult) LagWeight(lag int) float64 {
	if lag < 0 || lag+1 >= len(r.Coefficients) {
		return 0
	}
	return r.Coefficients[lag+1]
}

// DistributedLag fits the model by solving the normal equations (XᵀX)β = Xᵀy.
// Rows start at t = maxLag so every row has a full lag window. It returns
// ErrInsufficientRows when rows < maxLag+2 and ErrSingular when XᵀX has no usable pivot.
func DistributedLag(source, target []float64, maxLag int) (DistributedLagResult, error) {
	if len(source) != len(target) {
		return DistributedLagResult{}, fmt.Errorf("%w: source %d, target %d", ErrLengthMismatch, len(source), len(target))
	}
	if maxLag < 0 {
		return DistributedLagResult{}, fmt.Errorf("stats: negative maxLag %d", maxLag)
	}
	if maxLag >= len(source) {
		return DistributedLagResult{}, ErrInsufficientRows
	}
	rows := len(source) - maxLag
	if rows < maxLag+2 {
		return DistributedLagResult{}, ErrInsufficientRows
	}

	p := maxLag + 2
	xtx := make([][]float64, p)
	for i := range xtx {
		xtx[i] = make([]float64, p)
	}
	xty := make([]float64, p)
	row := make([]float64, p)
	var ySum float64
	for t := maxLag; t < len(source); t++ {
		row[0] = 1
		for l := 0; l <= maxLag; l++ {
			row[l+1] = source[t-l]
		}
		y := target[t]
		ySum += y
		for i := 0; i < p; i++ {
			xty[i] += row[i] * y
			for j := 0; j < p; j++ {
				xtx[i][j] += row[i] * row[j]
			}
		}
	}

	beta, err := SolveLinear(xtx, xty)
	if err != nil {
		return DistributedLagResult{}, err
	}

	yMean := ySum / float64(rows)
	var ssRes, ssTot float64
	for t := maxLag; t < len(source); t++ {
		pred := beta[0]
		for l := 0; l <= maxLag; l++ {
			pred += beta[l+1] * source[t-l]
		}
		d := target[t] - pred
		ssRes += d * d
		m := target[t] - yMean
		ssTot += m * m
	}
	r2 := 1.0
	if ssTot != 0 {
		r2 = 1 - ssRes/ssTot
	}
	if r2 < 0 {
		r2 = 0
	} else if r2 > 1 {
		r2 = 1
	}

	var total float64
	for _, b := range beta[1:] {
		total += b
	}
	return DistributedLagResult{
		MaxLag:       maxLag,
		Coefficients: beta,
		TotalEffect:  total,
		RSquared:     r2,
		SampleSize:   rows,
	}, nil
}
