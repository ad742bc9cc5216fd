package riskmodel

import (
	"math"

	"perth/internal/errs"
)

// NeweyWestConfig configures the HAC covariance estimator.
type NeweyWestConfig struct {
	// Lags is the maximum autocovariance lag; 0 selects it automatically as
	// ceil(4*(T/100)^(2/9)), clamped to T-1.
	Lags int
}

// OptimalLag returns the automatic Newey-West lag for T observations:
// ceil(4*(T/100)^(2/9)).
func OptimalLag(t int) int {
	if t < 2 {
		return 0
	}
	lag := int(math.Ceil(4 * math.Pow(float64(t)/100, 2.0/9)))
	if lag > t-1 {
		lag = t - 1
	}
	return lag
}

// NeweyWest computes the heteroskedasticity- and autocorrelation-consistent
// covariance of a T x K return matrix with Bartlett-kernel weights
// w_l = 1 - l/(L+1):
//
//	Sigma = Sigma_0 + sum_l w_l (Sigma_l + Sigma_l')
//
// where Sigma_l = (1/T) sum_{t=l}^{T-1} r~_t r~_{t-l}'. The output is
// symmetric by construction.
func NeweyWest(returns [][]float64, cfg NeweyWestConfig) ([][]float64, error) {
	t := len(returns)
	if t < 2 {
		return nil, &errs.InsufficientData{Required: 2, Actual: t}
	}
	k := len(returns[0])
	for _, row := range returns {
		if len(row) != k {
			return nil, &errs.DimensionMismatch{Expected: "rectangular T x K returns", Actual: "ragged rows"}
		}
	}

	lags := cfg.Lags
	if lags <= 0 {
		lags = OptimalLag(t)
	}
	if lags > t-1 {
		lags = t - 1
	}

	means := make([]float64, k)
	for _, row := range returns {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(t)
	}
	centered := make([][]float64, t)
	for ti, row := range returns {
		c := make([]float64, k)
		for j, v := range row {
			c[j] = v - means[j]
		}
		centered[ti] = c
	}

	// Contemporaneous covariance, divisor T.
	cov := NewMatrix(k)
	for _, row := range centered {
		for i := 0; i < k; i++ {
			for j := i; j < k; j++ {
				cov[i][j] += row[i] * row[j]
			}
		}
	}
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			cov[i][j] /= float64(t)
			cov[j][i] = cov[i][j]
		}
	}

	for l := 1; l <= lags; l++ {
		w := 1 - float64(l)/float64(lags+1)

		lagCov := NewMatrix(k)
		for ti := l; ti < t; ti++ {
			cur, prev := centered[ti], centered[ti-l]
			for i := 0; i < k; i++ {
				for j := 0; j < k; j++ {
					lagCov[i][j] += cur[i] * prev[j]
				}
			}
		}
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				lagCov[i][j] /= float64(t)
			}
		}

		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				cov[i][j] += w * (lagCov[i][j] + lagCov[j][i])
			}
		}
	}

	if err := checkSquare(cov); err != nil {
		return nil, err
	}
	return cov, nil
}
