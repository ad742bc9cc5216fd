package factors

import (
	"math"

	"perth/internal/panel"
)

// BetaConfig configures the market-beta factor.
type BetaConfig struct {
	Window     int
	MinPeriods int
}

// Beta scores the rolling regression slope of security returns on the
// market-return series.
type Beta struct {
	cfg BetaConfig
}

// NewBeta creates the beta factor (252-day window, 60 minimum periods).
func NewBeta(cfg BetaConfig) *Beta {
	if cfg.Window == 0 {
		cfg.Window = 252
	}
	if cfg.MinPeriods == 0 {
		cfg.MinPeriods = 60
	}
	return &Beta{cfg: cfg}
}

func (f *Beta) Name() string { return "beta" }

func (f *Beta) Compute(p *panel.Panel) ([]float64, error) {
	raw, err := rawBeta(p, f.cfg)
	if err != nil {
		return nil, err
	}
	return finish(p, raw, false, 0)
}

func rawBeta(p *panel.Panel, cfg BetaConfig) ([]float64, error) {
	returns, err := p.Column(panel.ColReturn)
	if err != nil {
		return nil, err
	}
	market, err := p.Column(panel.ColMarketReturn)
	if err != nil {
		return nil, err
	}
	return panel.RollingBeta(p, returns, market, cfg.Window, cfg.MinPeriods)
}

// HistoricalVolatilityConfig configures the realized-volatility factor.
type HistoricalVolatilityConfig struct {
	Window     int
	MinPeriods int
	Annualize  bool
}

// HistoricalVolatility scores the rolling standard deviation of returns.
type HistoricalVolatility struct {
	cfg HistoricalVolatilityConfig
}

// NewHistoricalVolatility creates the realized-volatility factor (63-day
// window, 20 minimum periods, annualized).
func NewHistoricalVolatility(cfg HistoricalVolatilityConfig) *HistoricalVolatility {
	if cfg.Window == 0 {
		cfg.Window = 63
		cfg.MinPeriods = 20
		cfg.Annualize = true
	}
	return &HistoricalVolatility{cfg: cfg}
}

func (f *HistoricalVolatility) Name() string { return "historical_volatility" }

func (f *HistoricalVolatility) Compute(p *panel.Panel) ([]float64, error) {
	returns, err := p.Column(panel.ColReturn)
	if err != nil {
		return nil, err
	}
	raw, err := panel.RollingStd(p, returns, f.cfg.Window, f.cfg.MinPeriods)
	if err != nil {
		return nil, err
	}
	if f.cfg.Annualize {
		// Scaling a column by a constant only rescales z-scores; the
		// annualized series is standardized regardless.
		scale := math.Sqrt(252)
		for i := range raw {
			if !panel.IsNull(raw[i]) {
				raw[i] *= scale
			}
		}
	}
	return finish(p, raw, false, 0)
}

// IdiosyncraticVolatilityConfig configures the residual-volatility factor.
type IdiosyncraticVolatilityConfig struct {
	BetaWindow     int
	BetaMinPeriods int
	Window         int
	MinPeriods     int
}

// IdiosyncraticVolatility scores the rolling standard deviation of
// market-model residuals r - beta*m.
type IdiosyncraticVolatility struct {
	cfg IdiosyncraticVolatilityConfig
}

// NewIdiosyncraticVolatility creates the residual-volatility factor.
func NewIdiosyncraticVolatility(cfg IdiosyncraticVolatilityConfig) *IdiosyncraticVolatility {
	if cfg.BetaWindow == 0 {
		cfg.BetaWindow = 252
		cfg.BetaMinPeriods = 60
	}
	if cfg.Window == 0 {
		cfg.Window = 63
		cfg.MinPeriods = 20
	}
	return &IdiosyncraticVolatility{cfg: cfg}
}

func (f *IdiosyncraticVolatility) Name() string { return "idiosyncratic_volatility" }

func (f *IdiosyncraticVolatility) Compute(p *panel.Panel) ([]float64, error) {
	returns, err := p.Column(panel.ColReturn)
	if err != nil {
		return nil, err
	}
	market, err := p.Column(panel.ColMarketReturn)
	if err != nil {
		return nil, err
	}
	beta, err := panel.RollingBeta(p, returns, market, f.cfg.BetaWindow, f.cfg.BetaMinPeriods)
	if err != nil {
		return nil, err
	}

	residuals := panel.BetaResiduals(p, returns, market, beta)
	raw, err := panel.RollingStd(p, residuals, f.cfg.Window, f.cfg.MinPeriods)
	if err != nil {
		return nil, err
	}
	return finish(p, raw, false, 0)
}

// CompositeVolatilityConfig configures the volatility composite weights.
type CompositeVolatilityConfig struct {
	BetaWeight    float64
	HistVolWeight float64
	IdioVolWeight float64
}

// CompositeVolatility blends standardized beta, realized volatility and
// idiosyncratic volatility.
type CompositeVolatility struct {
	cfg CompositeVolatilityConfig
}

// NewCompositeVolatility creates the volatility composite; zero weights
// default to an equal-weighted blend.
func NewCompositeVolatility(cfg CompositeVolatilityConfig) *CompositeVolatility {
	if cfg.BetaWeight == 0 && cfg.HistVolWeight == 0 && cfg.IdioVolWeight == 0 {
		cfg.BetaWeight = 1.0 / 3
		cfg.HistVolWeight = 1.0 / 3
		cfg.IdioVolWeight = 1.0 / 3
	}
	return &CompositeVolatility{cfg: cfg}
}

func (f *CompositeVolatility) Name() string { return "composite_volatility" }

func (f *CompositeVolatility) Compute(p *panel.Panel) ([]float64, error) {
	beta, err := NewBeta(BetaConfig{}).Compute(p)
	if err != nil {
		return nil, err
	}
	hist, err := NewHistoricalVolatility(HistoricalVolatilityConfig{}).Compute(p)
	if err != nil {
		return nil, err
	}
	idio, err := NewIdiosyncraticVolatility(IdiosyncraticVolatilityConfig{}).Compute(p)
	if err != nil {
		return nil, err
	}

	mixed := blend(p,
		[][]float64{beta, hist, idio},
		[]float64{f.cfg.BetaWeight, f.cfg.HistVolWeight, f.cfg.IdioVolWeight})
	return finish(p, mixed, false, 0)
}
