package riskmodel

import (
	"perth/internal/errs"
	"perth/pkg/formulas"
)

// Regime classifies the current volatility environment.
type Regime string

const (
	RegimeLow    Regime = "low"
	RegimeNormal Regime = "normal"
	RegimeHigh   Regime = "high"
)

// RegimeConfig configures the volatility-regime detector.
type RegimeConfig struct {
	ShortWindow   int     // default 21
	LongWindow    int     // default 252
	LowThreshold  float64 // default 0.75
	HighThreshold float64 // default 1.5
	MaxScale      float64 // default 3.0
}

func (c *RegimeConfig) defaults() error {
	if c.ShortWindow == 0 {
		c.ShortWindow = 21
	}
	if c.LongWindow == 0 {
		c.LongWindow = 252
	}
	if c.LowThreshold == 0 {
		c.LowThreshold = 0.75
	}
	if c.HighThreshold == 0 {
		c.HighThreshold = 1.5
	}
	if c.MaxScale == 0 {
		c.MaxScale = 3.0
	}
	if c.ShortWindow >= c.LongWindow {
		return &errs.InvalidParameter{Msg: "short window must be below the long window"}
	}
	if c.LowThreshold >= c.HighThreshold {
		return &errs.InvalidParameter{Msg: "low threshold must be below the high threshold"}
	}
	if c.MaxScale < 1 {
		return &errs.InvalidParameter{Msg: "max scale must be >= 1"}
	}
	return nil
}

// RegimeState is the detector output.
type RegimeState struct {
	Regime   Regime
	Ratio    float64 // sigma_short / sigma_long
	ShortVol float64
	LongVol  float64
	Scale    float64 // variance scale factor, ratio^2 clamped
}

// DetectRegime classifies a return series by the ratio of short- to
// long-window realized volatility. The variance scale factor is the squared
// ratio clamped into [1/MaxScale, MaxScale]. A zero long-window volatility
// yields the Normal regime with scale 1.
func DetectRegime(series []float64, cfg RegimeConfig) (*RegimeState, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	if len(series) < cfg.LongWindow {
		return nil, &errs.InsufficientData{Required: cfg.LongWindow, Actual: len(series)}
	}

	shortVol := formulas.StdDev(series[len(series)-cfg.ShortWindow:])
	longVol := formulas.StdDev(series[len(series)-cfg.LongWindow:])

	state := &RegimeState{ShortVol: shortVol, LongVol: longVol}
	if longVol == 0 {
		state.Regime = RegimeNormal
		state.Ratio = 1
		state.Scale = 1
		return state, nil
	}

	ratio := shortVol / longVol
	state.Ratio = ratio
	switch {
	case ratio < cfg.LowThreshold:
		state.Regime = RegimeLow
	case ratio > cfg.HighThreshold:
		state.Regime = RegimeHigh
	default:
		state.Regime = RegimeNormal
	}

	scale := ratio * ratio
	if scale > cfg.MaxScale {
		scale = cfg.MaxScale
	}
	if scale < 1/cfg.MaxScale {
		scale = 1 / cfg.MaxScale
	}
	state.Scale = scale
	return state, nil
}

// ScaleCovariance multiplies a covariance matrix by the regime variance
// scale detected from the return series, returning the scaled matrix and
// the regime state.
func ScaleCovariance(cov [][]float64, series []float64, cfg RegimeConfig) ([][]float64, *RegimeState, error) {
	if err := checkSquare(cov); err != nil {
		return nil, nil, err
	}
	state, err := DetectRegime(series, cfg)
	if err != nil {
		return nil, nil, err
	}

	out := CloneMatrix(cov)
	for i := range out {
		for j := range out[i] {
			out[i][j] *= state.Scale
		}
	}
	return out, state, nil
}
