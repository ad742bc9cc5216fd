package factors

import (
	"perth/internal/panel"
)

// MomentumConfig configures a single-horizon momentum factor.
type MomentumConfig struct {
	Window   int // rolling-sum window in trading days
	SkipDays int // shift applied before the rolling sum
}

type momentum struct {
	name string
	cfg  MomentumConfig
}

// NewShortTermMomentum creates the 21-day return momentum factor.
func NewShortTermMomentum(cfg MomentumConfig) Factor {
	if cfg.Window == 0 {
		cfg.Window = 21
	}
	return &momentum{name: "short_term_momentum", cfg: cfg}
}

// NewMediumTermMomentum creates the 6-1 month momentum factor: 126-day
// return sum lagged by 21 days.
func NewMediumTermMomentum(cfg MomentumConfig) Factor {
	if cfg.Window == 0 {
		cfg.Window = 126
		cfg.SkipDays = 21
	}
	return &momentum{name: "medium_term_momentum", cfg: cfg}
}

// NewLongTermMomentum creates the 12-1 month momentum factor: 252-day
// return sum lagged by 21 days.
func NewLongTermMomentum(cfg MomentumConfig) Factor {
	if cfg.Window == 0 {
		cfg.Window = 252
		cfg.SkipDays = 21
	}
	return &momentum{name: "long_term_momentum", cfg: cfg}
}

func (f *momentum) Name() string { return f.name }

func (f *momentum) Compute(p *panel.Panel) ([]float64, error) {
	returns, err := p.Column(panel.ColReturn)
	if err != nil {
		return nil, err
	}

	lagged := returns
	if f.cfg.SkipDays > 0 {
		lagged, err = panel.Shift(p, returns, f.cfg.SkipDays)
		if err != nil {
			return nil, err
		}
	}

	// Full-window requirement: a partial sum is not comparable across the
	// cross-section.
	raw, err := panel.RollingSum(p, lagged, f.cfg.Window, f.cfg.Window)
	if err != nil {
		return nil, err
	}
	return finish(p, raw, false, 0)
}

// CompositeMomentumConfig configures the momentum composite blend weights.
type CompositeMomentumConfig struct {
	ShortWeight  float64
	MediumWeight float64
	LongWeight   float64
}

// CompositeMomentum blends the three standardized momentum horizons.
type CompositeMomentum struct {
	cfg CompositeMomentumConfig
}

// NewCompositeMomentum creates the momentum composite; zero weights default
// to 0.2 / 0.5 / 0.3 (short / medium / long).
func NewCompositeMomentum(cfg CompositeMomentumConfig) *CompositeMomentum {
	if cfg.ShortWeight == 0 && cfg.MediumWeight == 0 && cfg.LongWeight == 0 {
		cfg.ShortWeight = 0.2
		cfg.MediumWeight = 0.5
		cfg.LongWeight = 0.3
	}
	return &CompositeMomentum{cfg: cfg}
}

func (f *CompositeMomentum) Name() string { return "composite_momentum" }

func (f *CompositeMomentum) Compute(p *panel.Panel) ([]float64, error) {
	short, err := NewShortTermMomentum(MomentumConfig{}).Compute(p)
	if err != nil {
		return nil, err
	}
	medium, err := NewMediumTermMomentum(MomentumConfig{}).Compute(p)
	if err != nil {
		return nil, err
	}
	long, err := NewLongTermMomentum(MomentumConfig{}).Compute(p)
	if err != nil {
		return nil, err
	}

	mixed := blend(p,
		[][]float64{short, medium, long},
		[]float64{f.cfg.ShortWeight, f.cfg.MediumWeight, f.cfg.LongWeight})
	return finish(p, mixed, false, 0)
}
