// Package panel implements the keyed (symbol, date) table the factor library
// and the cross-sectional estimator operate on, together with the shared
// cross-sectional and rolling primitives.
//
// A Panel is a dense store: one float64 slice per column of length
// nDates*nSymbols, indexed dateIdx*nSymbols+symIdx, with math.NaN() marking a
// missing value. Group-by-date aggregates slice one date block; per-symbol
// scans stride by nSymbols. Panels are read-only once built; derived columns
// are plain []float64 slices aligned to the same indexing.
package panel

import (
	"math"
	"sort"

	"perth/internal/errs"
)

// Well-known column names shared between the data layer and the factor
// library.
const (
	ColAdjustedClose     = "adjusted_close"
	ColVolume            = "volume"
	ColReturn            = "return"
	ColMarketReturn      = "market_return"
	ColMarketCap         = "market_cap"
	ColBookValue         = "book_value"
	ColEarnings          = "earnings"
	ColSales             = "sales"
	ColNetIncome         = "net_income"
	ColEquity            = "shareholders_equity"
	ColTotalDebt         = "total_debt"
	ColSharesOutstanding = "shares_outstanding"
)

// Panel is a dense (date, symbol)-keyed table. Dates and symbols are sorted
// ascending; (symbol, date) pairs are unique by construction.
type Panel struct {
	dates   []string
	symbols []string
	dateIdx map[string]int
	symIdx  map[string]int
	columns map[string][]float64
}

// Builder accumulates sparse (symbol, date, column, value) observations and
// produces a dense Panel.
type Builder struct {
	dates   map[string]bool
	symbols map[string]bool
	values  map[string]map[[2]string]float64 // column -> (symbol, date) -> value
}

// NewBuilder creates an empty panel builder.
func NewBuilder() *Builder {
	return &Builder{
		dates:   make(map[string]bool),
		symbols: make(map[string]bool),
		values:  make(map[string]map[[2]string]float64),
	}
}

// Set records one observation. Later calls for the same (symbol, date,
// column) overwrite earlier ones.
func (b *Builder) Set(symbol, date, column string, value float64) {
	b.dates[date] = true
	b.symbols[symbol] = true
	col, ok := b.values[column]
	if !ok {
		col = make(map[[2]string]float64)
		b.values[column] = col
	}
	col[[2]string{symbol, date}] = value
}

// Build materializes the dense panel. Cells never set are NaN.
func (b *Builder) Build() *Panel {
	dates := make([]string, 0, len(b.dates))
	for d := range b.dates {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	symbols := make([]string, 0, len(b.symbols))
	for s := range b.symbols {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	p := newPanel(dates, symbols)
	for name, cells := range b.values {
		col := p.newColumn()
		for key, v := range cells {
			col[p.Index(key[1], key[0])] = v
		}
		p.columns[name] = col
	}
	return p
}

func newPanel(dates, symbols []string) *Panel {
	p := &Panel{
		dates:   dates,
		symbols: symbols,
		dateIdx: make(map[string]int, len(dates)),
		symIdx:  make(map[string]int, len(symbols)),
		columns: make(map[string][]float64),
	}
	for i, d := range dates {
		p.dateIdx[d] = i
	}
	for i, s := range symbols {
		p.symIdx[s] = i
	}
	return p
}

func (p *Panel) newColumn() []float64 {
	col := make([]float64, len(p.dates)*len(p.symbols))
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}

// Dates returns the sorted date keys. The slice must not be modified.
func (p *Panel) Dates() []string { return p.dates }

// Symbols returns the sorted symbol keys. The slice must not be modified.
func (p *Panel) Symbols() []string { return p.symbols }

// NumDates returns the number of distinct dates.
func (p *Panel) NumDates() int { return len(p.dates) }

// NumSymbols returns the number of distinct symbols.
func (p *Panel) NumSymbols() int { return len(p.symbols) }

// DateIndex returns the row-block index of a date, or -1 if absent.
func (p *Panel) DateIndex(date string) int {
	if i, ok := p.dateIdx[date]; ok {
		return i
	}
	return -1
}

// SymbolIndex returns the column offset of a symbol, or -1 if absent.
func (p *Panel) SymbolIndex(symbol string) int {
	if i, ok := p.symIdx[symbol]; ok {
		return i
	}
	return -1
}

// Index returns the flat cell index for (date, symbol). Both keys must be
// present in the panel.
func (p *Panel) Index(date, symbol string) int {
	return p.dateIdx[date]*len(p.symbols) + p.symIdx[symbol]
}

// FlatIndex returns the flat cell index for positional (dateIdx, symIdx).
func (p *Panel) FlatIndex(dateIdx, symIdx int) int {
	return dateIdx*len(p.symbols) + symIdx
}

// HasColumn reports whether the named column exists.
func (p *Panel) HasColumn(name string) bool {
	_, ok := p.columns[name]
	return ok
}

// Column returns the named column aligned to the panel's indexing. The slice
// must not be modified. A missing column is a MissingInput error.
func (p *Panel) Column(name string) ([]float64, error) {
	col, ok := p.columns[name]
	if !ok {
		return nil, &errs.MissingInput{Column: name}
	}
	return col, nil
}

// Columns returns the sorted names of all columns.
func (p *Panel) Columns() []string {
	names := make([]string, 0, len(p.columns))
	for n := range p.columns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// At returns the value of the named column at (date, symbol), NaN if the
// column or either key is absent.
func (p *Panel) At(name, date, symbol string) float64 {
	col, ok := p.columns[name]
	if !ok {
		return math.NaN()
	}
	di, ok := p.dateIdx[date]
	if !ok {
		return math.NaN()
	}
	si, ok := p.symIdx[symbol]
	if !ok {
		return math.NaN()
	}
	return col[di*len(p.symbols)+si]
}

// WithColumn returns a shallow copy of the panel with one extra (or replaced)
// column. The input panel is not modified; existing columns are shared.
func (p *Panel) WithColumn(name string, values []float64) *Panel {
	out := &Panel{
		dates:   p.dates,
		symbols: p.symbols,
		dateIdx: p.dateIdx,
		symIdx:  p.symIdx,
		columns: make(map[string][]float64, len(p.columns)+1),
	}
	for n, c := range p.columns {
		out.columns[n] = c
	}
	out.columns[name] = values
	return out
}

// NewAligned returns a fresh all-NaN slice aligned to the panel's indexing,
// for building derived columns.
func (p *Panel) NewAligned() []float64 {
	return p.newColumn()
}

// IsNull reports whether v is the panel's missing-value marker.
func IsNull(v float64) bool { return math.IsNaN(v) }
