package factors

import (
	"perth/internal/panel"
)

// BookToPrice scores book value over market capitalization.
type BookToPrice struct {
	Winsorize bool
	Pct       float64
}

// NewBookToPrice creates the book-to-price factor with 1% winsorization.
func NewBookToPrice() *BookToPrice {
	return &BookToPrice{Winsorize: true, Pct: DefaultWinsorizePct}
}

func (f *BookToPrice) Name() string { return "book_to_price" }

func (f *BookToPrice) Compute(p *panel.Panel) ([]float64, error) {
	bv, err := p.Column(panel.ColBookValue)
	if err != nil {
		return nil, err
	}
	mc, err := p.Column(panel.ColMarketCap)
	if err != nil {
		return nil, err
	}

	raw := p.NewAligned()
	for i := range raw {
		if panel.IsNull(bv[i]) || panel.IsNull(mc[i]) || mc[i] <= 0 {
			continue
		}
		raw[i] = bv[i] / mc[i]
	}
	return finish(p, raw, f.Winsorize, f.Pct)
}

// EarningsYield scores trailing earnings over market capitalization.
type EarningsYield struct {
	Winsorize bool
	Pct       float64
}

// NewEarningsYield creates the earnings-yield factor with 1% winsorization.
func NewEarningsYield() *EarningsYield {
	return &EarningsYield{Winsorize: true, Pct: DefaultWinsorizePct}
}

func (f *EarningsYield) Name() string { return "earnings_yield" }

func (f *EarningsYield) Compute(p *panel.Panel) ([]float64, error) {
	e, err := p.Column(panel.ColEarnings)
	if err != nil {
		return nil, err
	}
	mc, err := p.Column(panel.ColMarketCap)
	if err != nil {
		return nil, err
	}

	raw := p.NewAligned()
	for i := range raw {
		if panel.IsNull(e[i]) || panel.IsNull(mc[i]) || mc[i] <= 0 {
			continue
		}
		raw[i] = e[i] / mc[i]
	}
	return finish(p, raw, f.Winsorize, f.Pct)
}

// CompositeValueConfig configures the value composite blend weights.
type CompositeValueConfig struct {
	BookToPriceWeight   float64
	EarningsYieldWeight float64
}

// CompositeValue blends standardized book-to-price and earnings-yield.
type CompositeValue struct {
	cfg CompositeValueConfig
}

// NewCompositeValue creates the value composite; zero weights default to an
// equal-weighted blend.
func NewCompositeValue(cfg CompositeValueConfig) *CompositeValue {
	if cfg.BookToPriceWeight == 0 && cfg.EarningsYieldWeight == 0 {
		cfg.BookToPriceWeight = 0.5
		cfg.EarningsYieldWeight = 0.5
	}
	return &CompositeValue{cfg: cfg}
}

func (f *CompositeValue) Name() string { return "composite_value" }

func (f *CompositeValue) Compute(p *panel.Panel) ([]float64, error) {
	bp, err := NewBookToPrice().Compute(p)
	if err != nil {
		return nil, err
	}
	ey, err := NewEarningsYield().Compute(p)
	if err != nil {
		return nil, err
	}

	mixed := blend(p, [][]float64{bp, ey}, []float64{f.cfg.BookToPriceWeight, f.cfg.EarningsYieldWeight})
	return finish(p, mixed, false, 0)
}
