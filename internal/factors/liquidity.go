package factors

import (
	"math"

	"perth/internal/panel"
)

// TurnoverConfig configures the share-turnover factor.
type TurnoverConfig struct {
	Window     int
	MinPeriods int
}

// Turnover scores the rolling mean of daily volume over shares outstanding.
type Turnover struct {
	cfg TurnoverConfig
}

// NewTurnover creates the turnover factor (21-day rolling mean).
func NewTurnover(cfg TurnoverConfig) *Turnover {
	if cfg.Window == 0 {
		cfg.Window = 21
		cfg.MinPeriods = 21
	}
	return &Turnover{cfg: cfg}
}

func (f *Turnover) Name() string { return "turnover" }

func (f *Turnover) Compute(p *panel.Panel) ([]float64, error) {
	volume, err := p.Column(panel.ColVolume)
	if err != nil {
		return nil, err
	}
	shares, err := p.Column(panel.ColSharesOutstanding)
	if err != nil {
		return nil, err
	}

	daily := p.NewAligned()
	for i := range daily {
		if panel.IsNull(volume[i]) || panel.IsNull(shares[i]) || shares[i] <= 0 {
			continue
		}
		daily[i] = volume[i] / shares[i]
	}

	raw, err := panel.RollingMean(p, daily, f.cfg.Window, f.cfg.MinPeriods)
	if err != nil {
		return nil, err
	}
	return finish(p, raw, false, 0)
}

// AmihudConfig configures the Amihud illiquidity factor.
type AmihudConfig struct {
	Window     int
	MinPeriods int
}

// Amihud scores the rolling mean of |r| / (price * volume), scaled by 1e6.
// The scaling is applied to the daily ratio before the rolling mean so the
// per-day magnitude is preserved.
type Amihud struct {
	cfg AmihudConfig
}

// NewAmihud creates the Amihud illiquidity factor (21-day rolling mean).
func NewAmihud(cfg AmihudConfig) *Amihud {
	if cfg.Window == 0 {
		cfg.Window = 21
		cfg.MinPeriods = 21
	}
	return &Amihud{cfg: cfg}
}

func (f *Amihud) Name() string { return "amihud" }

func (f *Amihud) Compute(p *panel.Panel) ([]float64, error) {
	returns, err := p.Column(panel.ColReturn)
	if err != nil {
		return nil, err
	}
	price, err := p.Column(panel.ColAdjustedClose)
	if err != nil {
		return nil, err
	}
	volume, err := p.Column(panel.ColVolume)
	if err != nil {
		return nil, err
	}

	daily := p.NewAligned()
	for i := range daily {
		if panel.IsNull(returns[i]) || panel.IsNull(price[i]) || panel.IsNull(volume[i]) {
			continue
		}
		dollar := price[i] * volume[i]
		if dollar <= 0 {
			continue
		}
		daily[i] = math.Abs(returns[i]) / dollar * 1e6
	}

	raw, err := panel.RollingMean(p, daily, f.cfg.Window, f.cfg.MinPeriods)
	if err != nil {
		return nil, err
	}
	return finish(p, raw, false, 0)
}

// CompositeLiquidityConfig configures the liquidity composite.
type CompositeLiquidityConfig struct {
	TurnoverWeight float64
	AmihudWeight   float64
}

// CompositeLiquidity combines standardized turnover and Amihud illiquidity
// as turnover - amihud, so a higher score means a more liquid security.
type CompositeLiquidity struct {
	cfg CompositeLiquidityConfig
}

// NewCompositeLiquidity creates the liquidity composite; zero weights
// default to an equal-weighted difference.
func NewCompositeLiquidity(cfg CompositeLiquidityConfig) *CompositeLiquidity {
	if cfg.TurnoverWeight == 0 && cfg.AmihudWeight == 0 {
		cfg.TurnoverWeight = 0.5
		cfg.AmihudWeight = 0.5
	}
	return &CompositeLiquidity{cfg: cfg}
}

func (f *CompositeLiquidity) Name() string { return "composite_liquidity" }

func (f *CompositeLiquidity) Compute(p *panel.Panel) ([]float64, error) {
	turnover, err := NewTurnover(TurnoverConfig{}).Compute(p)
	if err != nil {
		return nil, err
	}
	amihud, err := NewAmihud(AmihudConfig{}).Compute(p)
	if err != nil {
		return nil, err
	}

	// Subtract illiquidity from turnover: both components standardized, so
	// the difference is a signed blend.
	mixed := blend(p,
		[][]float64{turnover, amihud},
		[]float64{f.cfg.TurnoverWeight, -f.cfg.AmihudWeight})
	return finish(p, mixed, false, 0)
}
