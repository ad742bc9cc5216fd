// Package factors implements the style factor library. Every factor consumes
// a read-only panel and emits one standardized score column named
// "<name>_score": the raw signal is optionally winsorized per date and always
// finished with a cross-sectional z-score so regressions stay balanced.
// Missing inputs at a row propagate as a null score, never as 0.
package factors

import (
	"perth/internal/panel"
)

// Factor computes one standardized score column from a panel.
type Factor interface {
	// Name is the factor's short name; the emitted column is "<Name>_score".
	Name() string
	// Compute returns the score column aligned to the panel's indexing.
	Compute(p *panel.Panel) ([]float64, error)
}

// DefaultWinsorizePct is the symmetric winsorization percentile applied to
// raw fundamental signals before standardization.
const DefaultWinsorizePct = 0.01

// ScoreColumn is the canonical column name for a factor.
func ScoreColumn(f Factor) string {
	return f.Name() + "_score"
}

// finish applies the shared standardization discipline: optional per-date
// winsorization followed by the cross-sectional z-score.
func finish(p *panel.Panel, raw []float64, winsorize bool, pct float64) ([]float64, error) {
	if winsorize {
		if pct <= 0 {
			pct = DefaultWinsorizePct
		}
		var err error
		raw, err = panel.WinsorizeByDate(p, raw, pct)
		if err != nil {
			return nil, err
		}
	}
	return panel.ZScoreByDate(p, raw), nil
}

// blend combines already-standardized component columns with the given
// weights, normalized by the sum of absolute weights so signed blends
// (e.g. turnover minus illiquidity) stay well-defined. A null in any
// component propagates as a null blend.
func blend(p *panel.Panel, components [][]float64, weights []float64) []float64 {
	out := p.NewAligned()
	total := 0.0
	for _, w := range weights {
		if w < 0 {
			total -= w
		} else {
			total += w
		}
	}
	if total == 0 {
		return out
	}

	for i := range out {
		sum := 0.0
		null := false
		for c := range components {
			v := components[c][i]
			if panel.IsNull(v) {
				null = true
				break
			}
			sum += weights[c] * v
		}
		if !null {
			out[i] = sum / total
		}
	}
	return out
}

// DefaultStyleSet returns the seven style factors the cross-sectional
// regression uses by default: one composite per style family plus size.
func DefaultStyleSet() []Factor {
	return []Factor{
		NewCompositeValue(CompositeValueConfig{}),
		NewCompositeMomentum(CompositeMomentumConfig{}),
		NewLogMarketCap(LogMarketCapConfig{}),
		NewCompositeVolatility(CompositeVolatilityConfig{}),
		NewCompositeQuality(CompositeQualityConfig{}),
		NewCompositeGrowth(CompositeGrowthConfig{}),
		NewCompositeLiquidity(CompositeLiquidityConfig{}),
	}
}
