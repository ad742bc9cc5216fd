// Package cache provides repositories over the local SQLite market-data
// cache: quotes, universe membership, market caps, fundamentals, and SEC
// financial statements.
package cache

import "time"

// DateFormat is the canonical date layout used throughout the cache and
// the panels built from it.
const DateFormat = "2006-01-02"

// Quote is one daily OHLCV bar.
type Quote struct {
	Symbol        string
	Date          string // YYYY-MM-DD
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        uint64
	AdjustedClose float64
}

// Security is one universe membership row.
type Security struct {
	Symbol   string
	Name     string
	Sector   string
	Industry string
	AddedAt  time.Time
	Active   bool
}

// MarketCap is one market-capitalization observation.
type MarketCap struct {
	Symbol    string
	Date      string
	MarketCap float64
}

// CompanyCIK maps a ticker to its SEC Central Index Key.
type CompanyCIK struct {
	Symbol      string
	CIK         string
	CompanyName string
	UpdatedAt   time.Time
}

// FinancialStatement is one reported quarterly or annual filing.
type FinancialStatement struct {
	Symbol        string
	CIK           string
	PeriodEnd     string // YYYY-MM-DD
	PeriodType    string // "Q" or "A"
	FiscalYear    int
	FiscalQuarter int

	TotalAssets        float64
	TotalLiabilities   float64
	TotalDebt          float64
	ShareholdersEquity float64
	CashAndEquivalents float64

	Revenue         float64
	GrossProfit     float64
	OperatingIncome float64
	NetIncome       float64
	EPSBasic        float64
	EPSDiluted      float64

	OperatingCashFlow   float64
	CapitalExpenditures float64
	FreeCashFlow        float64
	DividendsPaid       float64

	SharesOutstanding float64
}
