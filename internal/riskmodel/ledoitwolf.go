package riskmodel

import (
	"math"

	"perth/internal/errs"
)

// ShrinkageTarget selects the structured matrix a sample covariance is
// shrunk toward.
type ShrinkageTarget int

const (
	// TargetScaledIdentity shrinks toward (trace(S)/n) * I. This is the
	// Ledoit-Wolf (2004) well-conditioned estimator and the default.
	TargetScaledIdentity ShrinkageTarget = iota
	// TargetDiagonal shrinks toward diag(S).
	TargetDiagonal
	// TargetConstantCorrelation shrinks toward the average off-diagonal
	// correlation applied to the sample volatilities.
	TargetConstantCorrelation
)

// LedoitWolfResult carries the shrunk covariance and its diagnostics.
type LedoitWolfResult struct {
	Covariance [][]float64
	Intensity  float64 // optimal delta* in [0,1]
	Target     ShrinkageTarget
}

// LedoitWolf computes the analytically optimal shrinkage of the sample
// covariance of a T x K return matrix toward the selected target:
//
//	delta* = clamp(rho^ / gamma^, 0, 1)
//
// with gamma^ = ||S - F||_F^2 and rho^ the sampling variance of S's entries
// estimated from the averaged squared deviations of the per-observation
// outer products from S. When the sample covariance already equals the
// target, delta* is 0.
func LedoitWolf(returns [][]float64, target ShrinkageTarget) (*LedoitWolfResult, error) {
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

	// Center and form the sample covariance with divisor T.
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

	sample := NewMatrix(k)
	for _, row := range centered {
		for i := 0; i < k; i++ {
			for j := i; j < k; j++ {
				sample[i][j] += row[i] * row[j]
			}
		}
	}
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			sample[i][j] /= float64(t)
			sample[j][i] = sample[i][j]
		}
	}

	f, err := shrinkageTarget(sample, target)
	if err != nil {
		return nil, err
	}

	// gamma^ = ||S - F||_F^2
	gamma := 0.0
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			d := sample[i][j] - f[i][j]
			gamma += d * d
		}
	}

	// pi^ = (1/T) sum_t ||x_t x_t' - S||_F^2; rho^ = pi^ / T estimates the
	// total sampling variance of the entries of S.
	pi := 0.0
	for _, row := range centered {
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				d := row[i]*row[j] - sample[i][j]
				pi += d * d
			}
		}
	}
	pi /= float64(t)
	rho := pi / float64(t)

	delta := 0.0
	if gamma > 1e-12 {
		delta = rho / gamma
		if delta < 0 {
			delta = 0
		}
		if delta > 1 {
			delta = 1
		}
	}

	out := NewMatrix(k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			out[i][j] = delta*f[i][j] + (1-delta)*sample[i][j]
		}
	}
	if err := checkSquare(out); err != nil {
		return nil, err
	}
	return &LedoitWolfResult{Covariance: out, Intensity: delta, Target: target}, nil
}

func shrinkageTarget(sample [][]float64, target ShrinkageTarget) ([][]float64, error) {
	k := len(sample)
	f := NewMatrix(k)

	switch target {
	case TargetScaledIdentity:
		mu := Trace(sample) / float64(k)
		for i := 0; i < k; i++ {
			f[i][i] = mu
		}

	case TargetDiagonal:
		for i := 0; i < k; i++ {
			f[i][i] = sample[i][i]
		}

	case TargetConstantCorrelation:
		// Average off-diagonal correlation applied to sample volatilities.
		vols := make([]float64, k)
		for i := 0; i < k; i++ {
			if sample[i][i] > 0 {
				vols[i] = math.Sqrt(sample[i][i])
			}
		}
		var sum float64
		var count int
		for i := 0; i < k; i++ {
			for j := i + 1; j < k; j++ {
				if vols[i] > 0 && vols[j] > 0 {
					sum += sample[i][j] / (vols[i] * vols[j])
					count++
				}
			}
		}
		avgCorr := 0.0
		if count > 0 {
			avgCorr = sum / float64(count)
		}
		for i := 0; i < k; i++ {
			f[i][i] = sample[i][i]
			for j := i + 1; j < k; j++ {
				v := avgCorr * vols[i] * vols[j]
				f[i][j] = v
				f[j][i] = v
			}
		}

	default:
		return nil, &errs.InvalidParameter{Msg: "unknown shrinkage target"}
	}
	return f, nil
}
