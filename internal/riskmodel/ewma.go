package riskmodel

import (
	"math"
	"strconv"

	"perth/internal/errs"
)

// EWMAConfig configures the exponentially weighted covariance estimator.
type EWMAConfig struct {
	// Decay is the per-step decay lambda in (0,1) (default 0.95).
	Decay float64
	// MinObservations is the minimum number of return rows (default 60).
	MinObservations int
	// BiasCorrection divides the result by the normalized weight sum.
	BiasCorrection bool
	// Center subtracts EWMA means per column before the outer products.
	Center bool
}

func (c *EWMAConfig) defaults() error {
	if c.Decay == 0 {
		c.Decay = 0.95
	}
	if c.Decay <= 0 || c.Decay >= 1 {
		return &errs.InvalidParameter{Msg: "EWMA decay must be in (0,1)"}
	}
	if c.MinObservations == 0 {
		c.MinObservations = 60
	}
	return nil
}

// HalfLife returns the number of periods over which an observation's weight
// halves: ln(0.5)/ln(lambda).
func (c EWMAConfig) HalfLife() float64 {
	return math.Log(0.5) / math.Log(c.Decay)
}

// EWMACovariance estimates the K x K factor covariance from a T x K matrix
// of factor returns, iterating dates ascending:
//
//	Sigma_0 = r~_0 r~_0'
//	Sigma_t = lambda*Sigma_{t-1} + (1-lambda)*r~_t r~_t'
func EWMACovariance(returns [][]float64, cfg EWMAConfig) ([][]float64, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	t := len(returns)
	if t < cfg.MinObservations {
		return nil, &errs.InsufficientData{Required: cfg.MinObservations, Actual: t}
	}
	k := len(returns[0])
	for i, row := range returns {
		if len(row) != k {
			return nil, &errs.DimensionMismatch{
				Expected: "rectangular T x K returns",
				Actual:   "ragged row " + strconv.Itoa(i),
			}
		}
	}

	centered := returns
	if cfg.Center {
		centered = make([][]float64, t)
		means := make([]float64, k)
		copy(means, returns[0])
		for ti := 0; ti < t; ti++ {
			row := make([]float64, k)
			for j := 0; j < k; j++ {
				if ti > 0 {
					means[j] = cfg.Decay*means[j] + (1-cfg.Decay)*returns[ti][j]
				}
				row[j] = returns[ti][j] - means[j]
			}
			centered[ti] = row
		}
	}

	cov := NewMatrix(k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			cov[i][j] = centered[0][i] * centered[0][j]
		}
	}
	for ti := 1; ti < t; ti++ {
		row := centered[ti]
		for i := 0; i < k; i++ {
			for j := i; j < k; j++ {
				v := cfg.Decay*cov[i][j] + (1-cfg.Decay)*row[i]*row[j]
				cov[i][j] = v
				cov[j][i] = v
			}
		}
	}

	if cfg.BiasCorrection {
		norm := (1 - math.Pow(cfg.Decay, float64(t))) / (1 - cfg.Decay) / float64(t)
		if norm > 0 {
			for i := 0; i < k; i++ {
				for j := 0; j < k; j++ {
					cov[i][j] /= norm
				}
			}
		}
	}

	if err := checkSquare(cov); err != nil {
		return nil, err
	}
	return cov, nil
}

