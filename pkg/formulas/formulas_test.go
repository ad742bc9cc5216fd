package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanAndStdDev(t *testing.T) {
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 5.0, Mean(data), 1e-12)
	// Sample standard deviation with the n-1 divisor.
	assert.InDelta(t, math.Sqrt(32.0/7.0), StdDev(data), 1e-12)
	assert.InDelta(t, 32.0/7.0, Variance(data), 1e-12)
	// Population standard deviation divides by n instead.
	assert.InDelta(t, math.Sqrt(32.0/8.0), PopStdDev(data), 1e-12)
}

func TestAnnualizedVolatility(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.01, -0.01, 0.01, -0.01}
	daily := StdDev(returns)
	assert.InDelta(t, daily*math.Sqrt(252), AnnualizedVolatility(returns), 1e-12)
}

func TestCalculateReturns(t *testing.T) {
	prices := []float64{100, 110, 99}
	returns := CalculateReturns(prices)
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-12)
	assert.InDelta(t, -0.10, returns[1], 1e-12)
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	up := []float64{2, 4, 6, 8, 10}
	down := []float64{10, 8, 6, 4, 2}
	assert.InDelta(t, 1.0, Correlation(x, up), 1e-12)
	assert.InDelta(t, -1.0, Correlation(x, down), 1e-12)
}

func TestQuantile(t *testing.T) {
	data := []float64{5, 1, 3, 2, 4}
	assert.InDelta(t, 1.0, Quantile(data, 0), 1e-12)
	assert.InDelta(t, 5.0, Quantile(data, 1), 1e-12)
	assert.InDelta(t, 3.0, Quantile(data, 0.5), 1e-12)
}

func TestCalculateRSI(t *testing.T) {
	t.Run("insufficient data returns nil", func(t *testing.T) {
		closes := []float64{100, 101, 102}
		assert.Nil(t, CalculateRSI(closes, 14))
	})

	t.Run("monotonic rally pins RSI at 100", func(t *testing.T) {
		closes := make([]float64, 30)
		for i := range closes {
			closes[i] = 100 + float64(i)
		}
		rsi := CalculateRSI(closes, 14)
		require.NotNil(t, rsi)
		assert.InDelta(t, 100.0, *rsi, 1e-9)
	})

	t.Run("result stays within bounds", func(t *testing.T) {
		closes := make([]float64, 40)
		for i := range closes {
			closes[i] = 100 + 5*math.Sin(float64(i)/3)
		}
		rsi := CalculateRSI(closes, 14)
		require.NotNil(t, rsi)
		assert.GreaterOrEqual(t, *rsi, 0.0)
		assert.LessOrEqual(t, *rsi, 100.0)
	})
}

func TestCalculateSMA(t *testing.T) {
	t.Run("insufficient data returns nil", func(t *testing.T) {
		assert.Nil(t, CalculateSMA([]float64{1, 2}, 5))
	})

	t.Run("averages the final window", func(t *testing.T) {
		closes := []float64{1, 2, 3, 4, 5, 6}
		sma := CalculateSMA(closes, 3)
		require.NotNil(t, sma)
		assert.InDelta(t, 5.0, *sma, 1e-12)
	})
}
