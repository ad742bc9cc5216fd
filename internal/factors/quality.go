package factors

import (
	"perth/internal/panel"
)

// ROE scores net income over shareholders' equity.
type ROE struct {
	Winsorize bool
	Pct       float64
}

// NewROE creates the return-on-equity factor with 1% winsorization.
func NewROE() *ROE {
	return &ROE{Winsorize: true, Pct: DefaultWinsorizePct}
}

func (f *ROE) Name() string { return "roe" }

func (f *ROE) Compute(p *panel.Panel) ([]float64, error) {
	ni, err := p.Column(panel.ColNetIncome)
	if err != nil {
		return nil, err
	}
	se, err := p.Column(panel.ColEquity)
	if err != nil {
		return nil, err
	}

	raw := p.NewAligned()
	for i := range raw {
		if panel.IsNull(ni[i]) || panel.IsNull(se[i]) || se[i] <= 0 {
			continue
		}
		raw[i] = ni[i] / se[i]
	}
	return finish(p, raw, f.Winsorize, f.Pct)
}

// Leverage scores total debt over shareholders' equity with the sign
// inverted: a higher score means lower leverage, i.e. higher quality.
type Leverage struct {
	Winsorize bool
	Pct       float64
}

// NewLeverage creates the inverted-leverage factor with 1% winsorization.
func NewLeverage() *Leverage {
	return &Leverage{Winsorize: true, Pct: DefaultWinsorizePct}
}

func (f *Leverage) Name() string { return "leverage" }

func (f *Leverage) Compute(p *panel.Panel) ([]float64, error) {
	debt, err := p.Column(panel.ColTotalDebt)
	if err != nil {
		return nil, err
	}
	se, err := p.Column(panel.ColEquity)
	if err != nil {
		return nil, err
	}

	raw := p.NewAligned()
	for i := range raw {
		if panel.IsNull(debt[i]) || panel.IsNull(se[i]) || se[i] <= 0 {
			continue
		}
		raw[i] = debt[i] / se[i]
	}

	scores, err := finish(p, raw, f.Winsorize, f.Pct)
	if err != nil {
		return nil, err
	}
	// Invert after standardization so mean 0 / std 1 is preserved.
	for i := range scores {
		if !panel.IsNull(scores[i]) {
			scores[i] = -scores[i]
		}
	}
	return scores, nil
}

// CompositeQualityConfig configures the quality composite weights.
type CompositeQualityConfig struct {
	ROEWeight      float64
	LeverageWeight float64
}

// CompositeQuality blends standardized ROE and inverted leverage.
type CompositeQuality struct {
	cfg CompositeQualityConfig
}

// NewCompositeQuality creates the quality composite; zero weights default to
// 0.6 ROE / 0.4 leverage.
func NewCompositeQuality(cfg CompositeQualityConfig) *CompositeQuality {
	if cfg.ROEWeight == 0 && cfg.LeverageWeight == 0 {
		cfg.ROEWeight = 0.6
		cfg.LeverageWeight = 0.4
	}
	return &CompositeQuality{cfg: cfg}
}

func (f *CompositeQuality) Name() string { return "composite_quality" }

func (f *CompositeQuality) Compute(p *panel.Panel) ([]float64, error) {
	roe, err := NewROE().Compute(p)
	if err != nil {
		return nil, err
	}
	lev, err := NewLeverage().Compute(p)
	if err != nil {
		return nil, err
	}

	mixed := blend(p, [][]float64{roe, lev}, []float64{f.cfg.ROEWeight, f.cfg.LeverageWeight})
	return finish(p, mixed, false, 0)
}
