package factors

import (
	"math"

	"perth/internal/panel"
)

// FourQuarterLag is the trading-day lag standing in for four fiscal quarters
// when fundamentals are carried on a daily panel.
const FourQuarterLag = 252

// GrowthConfig configures a year-over-year growth factor.
type GrowthConfig struct {
	LagPeriods int
	Winsorize  bool
	Pct        float64
}

func (c *GrowthConfig) defaults() {
	if c.LagPeriods == 0 {
		c.LagPeriods = FourQuarterLag
		c.Winsorize = true
		c.Pct = DefaultWinsorizePct
	}
}

// EarningsGrowth scores year-over-year earnings growth
// (e_t - e_lag) / |e_lag|, null when the lagged value is 0.
type EarningsGrowth struct {
	cfg GrowthConfig
}

// NewEarningsGrowth creates the earnings-growth factor.
func NewEarningsGrowth(cfg GrowthConfig) *EarningsGrowth {
	cfg.defaults()
	return &EarningsGrowth{cfg: cfg}
}

func (f *EarningsGrowth) Name() string { return "earnings_growth" }

func (f *EarningsGrowth) Compute(p *panel.Panel) ([]float64, error) {
	e, err := p.Column(panel.ColEarnings)
	if err != nil {
		return nil, err
	}
	lagged, err := panel.Shift(p, e, f.cfg.LagPeriods)
	if err != nil {
		return nil, err
	}

	raw := p.NewAligned()
	for i := range raw {
		cur, prev := e[i], lagged[i]
		if panel.IsNull(cur) || panel.IsNull(prev) || prev == 0 {
			continue
		}
		raw[i] = (cur - prev) / math.Abs(prev)
	}
	return finish(p, raw, f.cfg.Winsorize, f.cfg.Pct)
}

// SalesGrowth scores year-over-year sales growth (s_t - s_lag) / s_lag,
// null when the lagged value is <= 0.
type SalesGrowth struct {
	cfg GrowthConfig
}

// NewSalesGrowth creates the sales-growth factor.
func NewSalesGrowth(cfg GrowthConfig) *SalesGrowth {
	cfg.defaults()
	return &SalesGrowth{cfg: cfg}
}

func (f *SalesGrowth) Name() string { return "sales_growth" }

func (f *SalesGrowth) Compute(p *panel.Panel) ([]float64, error) {
	s, err := p.Column(panel.ColSales)
	if err != nil {
		return nil, err
	}
	lagged, err := panel.Shift(p, s, f.cfg.LagPeriods)
	if err != nil {
		return nil, err
	}

	raw := p.NewAligned()
	for i := range raw {
		cur, prev := s[i], lagged[i]
		if panel.IsNull(cur) || panel.IsNull(prev) || prev <= 0 {
			continue
		}
		raw[i] = (cur - prev) / prev
	}
	return finish(p, raw, f.cfg.Winsorize, f.cfg.Pct)
}

// CompositeGrowthConfig configures the growth composite weights.
type CompositeGrowthConfig struct {
	EarningsWeight float64
	SalesWeight    float64
}

// CompositeGrowth blends standardized earnings and sales growth.
type CompositeGrowth struct {
	cfg CompositeGrowthConfig
}

// NewCompositeGrowth creates the growth composite; zero weights default to
// an equal-weighted blend.
func NewCompositeGrowth(cfg CompositeGrowthConfig) *CompositeGrowth {
	if cfg.EarningsWeight == 0 && cfg.SalesWeight == 0 {
		cfg.EarningsWeight = 0.5
		cfg.SalesWeight = 0.5
	}
	return &CompositeGrowth{cfg: cfg}
}

func (f *CompositeGrowth) Name() string { return "composite_growth" }

func (f *CompositeGrowth) Compute(p *panel.Panel) ([]float64, error) {
	eg, err := NewEarningsGrowth(GrowthConfig{}).Compute(p)
	if err != nil {
		return nil, err
	}
	sg, err := NewSalesGrowth(GrowthConfig{}).Compute(p)
	if err != nil {
		return nil, err
	}

	mixed := blend(p, [][]float64{eg, sg}, []float64{f.cfg.EarningsWeight, f.cfg.SalesWeight})
	return finish(p, mixed, true, DefaultWinsorizePct)
}
