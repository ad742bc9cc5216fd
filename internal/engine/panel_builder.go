// Package engine assembles the cached market data into panels and runs the
// full risk-model pipeline over them.
package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"perth/internal/cache"
	"perth/internal/errs"
	"perth/internal/panel"
)

// PanelBuilder turns cached quotes, market caps, and statements into a
// canonical panel.
type PanelBuilder struct {
	quotes       *cache.QuoteRepository
	fundamentals *cache.FundamentalsRepository
	log          zerolog.Logger
}

func NewPanelBuilder(quotes *cache.QuoteRepository, fundamentals *cache.FundamentalsRepository, log zerolog.Logger) *PanelBuilder {
	return &PanelBuilder{
		quotes:       quotes,
		fundamentals: fundamentals,
		log:          log.With().Str("component", "panel_builder").Logger(),
	}
}

// Build assembles the panel for a universe and a benchmark symbol over
// [start, end]: adjusted close, volume, daily returns, the benchmark return
// broadcast to every symbol, forward-filled market caps, and as-of joined
// statement fields.
func (b *PanelBuilder) Build(symbols []string, benchmark string, start, end time.Time) (*panel.Panel, error) {
	if len(symbols) == 0 {
		return nil, &errs.InsufficientData{Required: 1, Actual: 0}
	}

	builder := panel.NewBuilder()
	loaded := 0
	for _, symbol := range symbols {
		bars, err := b.quotes.GetRange(symbol, start, end)
		if err != nil {
			return nil, fmt.Errorf("failed to load quotes for %s: %w", symbol, err)
		}
		if len(bars) == 0 {
			b.log.Warn().Str("symbol", symbol).Msg("no cached quotes, excluding from panel")
			continue
		}
		loaded++
		for _, bar := range bars {
			builder.Set(bar.Symbol, bar.Date, panel.ColAdjustedClose, bar.AdjustedClose)
			builder.Set(bar.Symbol, bar.Date, panel.ColVolume, float64(bar.Volume))
		}
	}
	if loaded == 0 {
		return nil, &errs.InsufficientData{Required: 1, Actual: 0}
	}

	benchBars, err := b.quotes.GetRange(benchmark, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load benchmark quotes for %s: %w", benchmark, err)
	}
	benchReturns := barReturns(benchBars)

	p := builder.Build()
	p = b.withReturns(p)
	p = b.withMarketReturn(p, benchReturns)

	p, err = b.withMarketCaps(p, symbols, start, end)
	if err != nil {
		return nil, err
	}
	p, err = b.withStatements(p, symbols)
	if err != nil {
		return nil, err
	}

	b.log.Info().Int("symbols", p.NumSymbols()).Int("dates", p.NumDates()).
		Msg("panel assembled")
	return p, nil
}

// barReturns computes simple daily returns keyed by date from a bar series.
func barReturns(bars []cache.Quote) map[string]float64 {
	out := make(map[string]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].AdjustedClose
		if prev > 0 {
			out[bars[i].Date] = bars[i].AdjustedClose/prev - 1
		}
	}
	return out
}

// withReturns derives per-symbol daily returns from adjusted closes.
func (b *PanelBuilder) withReturns(p *panel.Panel) *panel.Panel {
	ac, err := p.Column(panel.ColAdjustedClose)
	if err != nil {
		return p
	}
	returns := p.NewAligned()
	nSym := p.NumSymbols()
	for si := 0; si < nSym; si++ {
		for di := 1; di < p.NumDates(); di++ {
			prev := ac[p.FlatIndex(di-1, si)]
			cur := ac[p.FlatIndex(di, si)]
			if panel.IsNull(prev) || panel.IsNull(cur) || prev <= 0 {
				continue
			}
			returns[p.FlatIndex(di, si)] = cur/prev - 1
		}
	}
	return p.WithColumn(panel.ColReturn, returns)
}

// withMarketReturn broadcasts the benchmark's daily return to all symbols.
func (b *PanelBuilder) withMarketReturn(p *panel.Panel, benchReturns map[string]float64) *panel.Panel {
	col := p.NewAligned()
	for di, date := range p.Dates() {
		r, ok := benchReturns[date]
		if !ok {
			continue
		}
		for si := 0; si < p.NumSymbols(); si++ {
			col[p.FlatIndex(di, si)] = r
		}
	}
	return p.WithColumn(panel.ColMarketReturn, col)
}

// withMarketCaps forward-fills cached market caps onto the panel dates.
func (b *PanelBuilder) withMarketCaps(p *panel.Panel, symbols []string, start, end time.Time) (*panel.Panel, error) {
	col := p.NewAligned()
	for _, symbol := range symbols {
		si := p.SymbolIndex(symbol)
		if si < 0 {
			continue
		}
		caps, err := b.fundamentals.GetMarketCaps(symbol, start.AddDate(-1, 0, 0), end)
		if err != nil {
			return nil, fmt.Errorf("failed to load market caps for %s: %w", symbol, err)
		}
		if len(caps) == 0 {
			continue
		}
		dates := p.Dates()
		ci := 0
		last := 0.0
		haveLast := false
		for di, date := range dates {
			for ci < len(caps) && caps[ci].Date <= date {
				last = caps[ci].MarketCap
				haveLast = true
				ci++
			}
			if haveLast && last > 0 {
				col[p.FlatIndex(di, si)] = last
			}
		}
	}
	return p.WithColumn(panel.ColMarketCap, col), nil
}

// statementFields carries the as-of joined fundamentals for one symbol.
type statementFields struct {
	periodEnd string
	bookValue float64
	netIncome float64
	equity    float64
	totalDebt float64
	shares    float64
	earnings  float64 // trailing four-quarter net income
	sales     float64 // trailing four-quarter revenue
}

// withStatements joins the latest reported quarterly statement at or before
// each panel date, with trailing four-quarter earnings and sales sums.
func (b *PanelBuilder) withStatements(p *panel.Panel, symbols []string) (*panel.Panel, error) {
	cols := map[string][]float64{
		panel.ColBookValue:         p.NewAligned(),
		panel.ColEarnings:          p.NewAligned(),
		panel.ColSales:             p.NewAligned(),
		panel.ColNetIncome:         p.NewAligned(),
		panel.ColEquity:            p.NewAligned(),
		panel.ColTotalDebt:         p.NewAligned(),
		panel.ColSharesOutstanding: p.NewAligned(),
	}

	for _, symbol := range symbols {
		si := p.SymbolIndex(symbol)
		if si < 0 {
			continue
		}
		stmts, err := b.fundamentals.GetStatements(symbol, "Q", 40)
		if err != nil {
			return nil, fmt.Errorf("failed to load statements for %s: %w", symbol, err)
		}
		if len(stmts) == 0 {
			continue
		}
		// GetStatements returns most recent first; as-of joining wants
		// ascending period ends.
		sort.Slice(stmts, func(i, j int) bool { return stmts[i].PeriodEnd < stmts[j].PeriodEnd })

		fields := asOfFields(stmts)
		fi := 0
		var cur *statementFields
		for di, date := range p.Dates() {
			for fi < len(fields) && fields[fi].periodEnd <= date {
				cur = &fields[fi]
				fi++
			}
			if cur == nil {
				continue
			}
			idx := p.FlatIndex(di, si)
			cols[panel.ColBookValue][idx] = cur.bookValue
			cols[panel.ColEarnings][idx] = cur.earnings
			cols[panel.ColSales][idx] = cur.sales
			cols[panel.ColNetIncome][idx] = cur.netIncome
			cols[panel.ColEquity][idx] = cur.equity
			cols[panel.ColTotalDebt][idx] = cur.totalDebt
			cols[panel.ColSharesOutstanding][idx] = cur.shares
		}
	}

	for name, col := range cols {
		p = p.WithColumn(name, col)
	}
	return p, nil
}

// asOfFields precomputes the statement-derived fields per reporting period,
// including trailing four-quarter sums once enough history exists.
func asOfFields(stmts []cache.FinancialStatement) []statementFields {
	out := make([]statementFields, len(stmts))
	for i, s := range stmts {
		f := statementFields{
			periodEnd: s.PeriodEnd,
			bookValue: s.ShareholdersEquity,
			netIncome: s.NetIncome,
			equity:    s.ShareholdersEquity,
			totalDebt: s.TotalDebt,
			shares:    s.SharesOutstanding,
		}
		if i >= 3 {
			for j := i - 3; j <= i; j++ {
				f.earnings += stmts[j].NetIncome
				f.sales += stmts[j].Revenue
			}
		} else {
			// Not enough history for trailing sums.
			f.earnings = math.NaN()
			f.sales = math.NaN()
		}
		out[i] = f
	}
	return out
}
