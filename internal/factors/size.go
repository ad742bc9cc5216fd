package factors

import (
	"math"

	"perth/internal/panel"
)

// LogMarketCapConfig configures the size factor.
type LogMarketCapConfig struct {
	// MinCap excludes securities below this market cap; 0 disables the filter.
	MinCap float64
}

// LogMarketCap scores the natural log of market capitalization.
type LogMarketCap struct {
	cfg LogMarketCapConfig
}

// NewLogMarketCap creates the size factor.
func NewLogMarketCap(cfg LogMarketCapConfig) *LogMarketCap {
	return &LogMarketCap{cfg: cfg}
}

func (f *LogMarketCap) Name() string { return "log_market_cap" }

func (f *LogMarketCap) Compute(p *panel.Panel) ([]float64, error) {
	mc, err := p.Column(panel.ColMarketCap)
	if err != nil {
		return nil, err
	}

	raw := p.NewAligned()
	for i := range raw {
		v := mc[i]
		if panel.IsNull(v) || v <= 0 || v < f.cfg.MinCap {
			continue
		}
		raw[i] = math.Log(v)
	}
	return finish(p, raw, false, 0)
}
