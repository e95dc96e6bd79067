package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-12)
}

func TestStdDev(t *testing.T) {
	assert.Equal(t, 0.0, StdDev(nil))
	// Sample std dev of {2, 4, 4, 4, 5, 5, 7, 9} is sqrt(32/7)
	got := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, math.Sqrt(32.0/7.0), got, 1e-12)
}

func TestCovariance(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	y := []float64{2, 4, 6, 8}

	// y = 2x, so cov(x, y) = 2 * var(x)
	assert.InDelta(t, 2*Variance(x), Covariance(x, y), 1e-12)

	// Mismatched lengths return 0
	assert.Equal(t, 0.0, Covariance(x, y[:3]))
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	up := []float64{10, 20, 30, 40}
	down := []float64{40, 30, 20, 10}

	assert.InDelta(t, 1.0, Correlation(x, up), 1e-12)
	assert.InDelta(t, -1.0, Correlation(x, down), 1e-12)
}

func TestLogReturns(t *testing.T) {
	prices := []float64{100, 110, 99}
	returns := LogReturns(prices)

	assert.Len(t, returns, 2)
	assert.InDelta(t, math.Log(110.0/100.0), returns[0], 1e-12)
	assert.InDelta(t, math.Log(99.0/110.0), returns[1], 1e-12)
}

func TestLogReturns_NonPositivePrice(t *testing.T) {
	returns := LogReturns([]float64{100, 0, 50})

	assert.Len(t, returns, 2)
	assert.True(t, math.IsNaN(returns[0]))
	assert.True(t, math.IsNaN(returns[1]))
}

func TestLogReturns_TooShort(t *testing.T) {
	assert.Empty(t, LogReturns([]float64{100}))
}

func TestAnnualizedVolatility(t *testing.T) {
	returns := []float64{0.01, -0.02, 0.015, 0.005}
	expected := StdDev(returns) * math.Sqrt(252)

	assert.InDelta(t, expected, AnnualizedVolatility(returns), 1e-12)
	assert.Equal(t, 0.0, AnnualizedVolatility(nil))
}
