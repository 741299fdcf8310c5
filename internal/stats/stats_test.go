package stats

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	seriesX = []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8}
	seriesY = []float64{2, 7, 1, 8, 2, 8, 1, 8, 2, 8, 4, 5}
)

func TestPearson_SymmetryAndBounds(t *testing.T) {
	r := Pearson(seriesX, seriesY)
	assert.Equal(t, r, Pearson(seriesY, seriesX))
	assert.GreaterOrEqual(t, r, -1.0)
	assert.LessOrEqual(t, r, 1.0)

	assert.InDelta(t, 1.0, Pearson(seriesX, seriesX), 1e-12)
	neg := make([]float64, len(seriesX))
	for i, v := range seriesX {
		neg[i] = -2*v + 7
	}
	assert.InDelta(t, -1.0, Pearson(seriesX, neg), 1e-12)
}

func TestPearson_Degenerate(t *testing.T) {
	assert.Equal(t, 0.0, Pearson(nil, nil))
	assert.Equal(t, 0.0, Pearson([]float64{1, 2, 3}, []float64{1, 2}))
	assert.Equal(t, 0.0, Pearson([]float64{4, 4, 4}, []float64{1, 2, 3}))
	assert.Equal(t, 0.0, Pearson([]float64{1, 2, 3}, []float64{0, 0, 0}))
}

func TestCrossCorrelate_SampleCounts(t *testing.T) {
	pts := CrossCorrelate(seriesX, seriesY, 3)
	require.Len(t, pts, 7)
	for i, p := range pts {
		assert.Equal(t, i-3, p.Lag)
		assert.Equal(t, len(seriesX)-absInt(p.Lag), p.PairedSamples)
		assert.LessOrEqual(t, math.Abs(p.Correlation), 1.0)
	}
	// lag 0 is plain Pearson.
	assert.InDelta(t, Pearson(seriesX, seriesY), pts[3].Correlation, 1e-12)
}

func TestCrossCorrelate_DropsLagsWithFewerThanTwoSamples(t *testing.T) {
	src := []float64{1, 2, 3, 4}
	pts := CrossCorrelate(src, []float64{2, 4, 6, 9}, 5)
	lags := make([]int, 0, len(pts))
	for _, p := range pts {
		lags = append(lags, p.Lag)
		assert.GreaterOrEqual(t, p.PairedSamples, 2)
	}
	assert.Equal(t, []int{-2, -1, 0, 1, 2}, lags)

	assert.Empty(t, CrossCorrelate(nil, src, 2))
	assert.Empty(t, CrossCorrelate(src, nil, 2))
}

func TestCrossCorrelate_FindsShift(t *testing.T) {
	src := []float64{0, 1, 0, 0, 3, 0, 0, 2, 0, 0, 1, 0, 4, 0, 0}
	// target echoes source two steps later
	tgt := make([]float64, len(src))
	for i := range src {
		if i+2 < len(tgt) {
			tgt[i+2] = src[i]
		}
	}
	best, ok := BestLag(CrossCorrelate(src, tgt, 4))
	require.True(t, ok)
	assert.Equal(t, 2, best.Lag)
	assert.InDelta(t, 1.0, best.Correlation, 1e-9)
}

func TestSortByStrength_TieBreaks(t *testing.T) {
	pts := []LagCorrelationPoint{
		{Lag: 2, Correlation: 0.5},
		{Lag: -1, Correlation: -0.5},
		{Lag: 1, Correlation: 0.5},
		{Lag: 0, Correlation: 0.1},
	}
	sorted := SortByStrength(pts)
	assert.Equal(t, []int{-1, 1, 2, 0}, []int{sorted[0].Lag, sorted[1].Lag, sorted[2].Lag, sorted[3].Lag})
	assert.Equal(t, 2, pts[0].Lag, "input is not reordered")

	_, ok := BestLag(nil)
	assert.False(t, ok)
}

func TestSolveLinear(t *testing.T) {
	// first pivot is zero, forcing a row swap
	a := [][]float64{
		{0, 2, 1},
		{1, 1, 1},
		{2, 1, 3},
	}
	b := []float64{7, 6, 13}
	x, err := SolveLinear(a, b)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2, 3}, x, 1e-9)
	assert.Equal(t, 0.0, a[0][0], "input matrix untouched")

	_, err = SolveLinear([][]float64{{1, 2}, {2, 4}}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrSingular)

	_, err = SolveLinear([][]float64{{1, 2}}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestDistributedLag_RecoversExactScale(t *testing.T) {
	src := []float64{1, 4, 2, 8, 5, 7, 3, 6}
	tgt := make([]float64, len(src))
	for i, v := range src {
		tgt[i] = 3 * v
	}
	res, err := DistributedLag(src, tgt, 0)
	require.NoError(t, err)
	require.Len(t, res.Coefficients, 2)
	assert.InDelta(t, 0, res.Intercept(), 1e-9)
	assert.InDelta(t, 3, res.LagWeight(0), 1e-9)
	assert.InDelta(t, 3, res.TotalEffect, 1e-9)
	assert.InDelta(t, 1, res.RSquared, 1e-9)
	assert.Equal(t, len(src), res.SampleSize)
}

func TestDistributedLag_RecoversLaggedWeights(t *testing.T) {
	src := []float64{2, 0, 5, 1, 3, 7, 4, 0, 6, 2, 8, 1, 5, 3, 9, 4}
	tgt := make([]float64, len(src))
	for i := range src {
		tgt[i] = 1.5 + 2*src[i]
		if i >= 1 {
			tgt[i] += 0.5 * src[i-1]
		}
		if i >= 2 {
			tgt[i] += 0.25 * src[i-2]
		}
	}
	res, err := DistributedLag(src, tgt, 2)
	require.NoError(t, err)
	assert.Len(t, res.Coefficients, 4)
	assert.InDeltaSlice(t, []float64{1.5, 2, 0.5, 0.25}, res.Coefficients, 1e-6)
	assert.InDelta(t, 2.75, res.TotalEffect, 1e-6)
	assert.Equal(t, len(src)-2, res.SampleSize)
	assert.Equal(t, 2, res.MaxLag)
	assert.Equal(t, 0.0, res.LagWeight(5))
}

func TestDistributedLag_NoResultPaths(t *testing.T) {
	// 5 points, maxLag 3: rows = 2 < maxLag+2
	_, err := DistributedLag([]float64{1, 2, 3, 4, 5}, []float64{1, 2, 3, 4, 5}, 3)
	assert.ErrorIs(t, err, ErrInsufficientRows)

	_, err = DistributedLag(nil, nil, 0)
	assert.ErrorIs(t, err, ErrInsufficientRows)

	// constant source is collinear with the intercept column
	_, err = DistributedLag([]float64{2, 2, 2, 2, 2}, []float64{1, 2, 3, 4, 5}, 0)
	assert.True(t, errors.Is(err, ErrSingular))

	_, err = DistributedLag([]float64{1, 2, 3}, []float64{1, 2}, 0)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestHugeMaxLagReturnsNoResult(t *testing.T) {
	src := []float64{1, 2, 3, 4}
	tgt := []float64{2, 4, 6, 9}
	assert.Len(t, CrossCorrelate(src, tgt, math.MaxInt), 5)
	assert.Len(t, CrossCorrelate(src, tgt, math.MaxInt/2), 5)
	assert.Empty(t, CrossCorrelate([]float64{1}, []float64{2}, math.MaxInt))

	_, err := DistributedLag(src, tgt, math.MaxInt)
	assert.ErrorIs(t, err, ErrInsufficientRows)
	_, err = DistributedLag(src, tgt, math.MaxInt-1)
	assert.ErrorIs(t, err, ErrInsufficientRows)
	_, err = DistributedLag(src, tgt, len(src))
	assert.ErrorIs(t, err, ErrInsufficientRows)
}

func TestDistributedLag_ConstantTarget(t *testing.T) {
	res, err := DistributedLag([]float64{1, 3, 2, 5, 4}, []float64{7, 7, 7, 7, 7}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.RSquared)
	assert.InDelta(t, 7, res.Intercept(), 1e-9)
	assert.InDelta(t, 0, res.TotalEffect, 1e-9)
}

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 2.5, Mean([]float64{1, 2, 3, 4}))
}
