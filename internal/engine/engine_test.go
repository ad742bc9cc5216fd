package engine

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perth/internal/cache"
	"perth/internal/database"
	"perth/internal/panel"
	"perth/internal/riskmodel"
	"perth/internal/sectors"
)

func testDates(n int) []string {
	base := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	dates := make([]string, n)
	for i := range dates {
		dates[i] = base.AddDate(0, 0, i).Format(cache.DateFormat)
	}
	return dates
}

// syntheticPanel builds a panel with enough history for the price-based
// factors: returns, market return, and market caps for eight symbols.
func syntheticPanel(t *testing.T, nDates int) *panel.Panel {
	t.Helper()
	symbols := []string{"S0", "S1", "S2", "S3", "S4", "S5", "S6", "S7"}
	dates := testDates(nDates)

	b := panel.NewBuilder()
	for si, sym := range symbols {
		price := 50.0 + 10*float64(si)
		for di, date := range dates {
			drift := 0.0002 * float64(si-3)
			wiggle := 0.01 * math.Sin(float64(di*(si+2)))
			r := drift + wiggle
			price *= 1 + r
			b.Set(sym, date, panel.ColAdjustedClose, price)
			b.Set(sym, date, panel.ColReturn, r)
			b.Set(sym, date, panel.ColMarketReturn, 0.0001+0.005*math.Sin(float64(di)))
			b.Set(sym, date, panel.ColMarketCap, 1e9*float64(si+1))
			b.Set(sym, date, panel.ColVolume, 1e6+1e5*float64(si))
			b.Set(sym, date, panel.ColSharesOutstanding, 1e7)
		}
	}
	return b.Build()
}

func testClassification() sectors.Classification {
	return sectors.Classification{
		"S0": "Technology", "S1": "Technology", "S2": "Technology", "S3": "Technology",
		"S4": "Energy", "S5": "Energy", "S6": "Energy", "S7": "Energy",
	}
}

func TestModelFitEndToEnd(t *testing.T) {
	p := syntheticPanel(t, 320)
	builder := NewBuilder(ModelConfig{}, zerolog.Nop())

	model, err := builder.Fit(p, testClassification())
	require.NoError(t, err)

	// Fundamentals-dependent factors are skipped; price-based ones remain.
	assert.Contains(t, model.StyleNames, "composite_momentum")
	assert.Contains(t, model.StyleNames, "log_market_cap")
	assert.NotContains(t, model.StyleNames, "composite_value")

	// Factor order: one column per sector, then styles.
	require.NotNil(t, model.Encoder)
	assert.Equal(t, len(model.FactorNames), model.Encoder.NumSectors()+len(model.StyleNames))

	// Covariance is square, symmetric, and positive definite.
	k := len(model.FactorNames)
	require.Len(t, model.Covariance, k)
	for i := range model.Covariance {
		for j := range model.Covariance[i] {
			assert.InDelta(t, model.Covariance[j][i], model.Covariance[i][j], 1e-10)
		}
	}
	pd, err := riskmodel.IsPositiveDefinite(model.Covariance, 0)
	require.NoError(t, err)
	assert.True(t, pd)

	// Every security gets a specific-risk estimate bounded by its group.
	require.Len(t, model.Specific, 8)
	for sym, est := range model.Specific {
		assert.Greater(t, est.Volatility, 0.0, sym)
	}
}

func TestModelRegimeScaling(t *testing.T) {
	p := syntheticPanel(t, 320)
	builder := NewBuilder(ModelConfig{RegimeScaling: true}, zerolog.Nop())

	model, err := builder.Fit(p, testClassification())
	require.NoError(t, err)
	require.NotNil(t, model.Regime)
	assert.Greater(t, model.Regime.Scale, 0.0)
	assert.LessOrEqual(t, model.Regime.Scale, 3.0)
}

func TestModelExposures(t *testing.T) {
	p := syntheticPanel(t, 320)
	builder := NewBuilder(ModelConfig{}, zerolog.Nop())
	model, err := builder.Fit(p, testClassification())
	require.NoError(t, err)

	row, date, ok := model.LatestExposures("S3")
	require.True(t, ok)
	assert.NotEmpty(t, date)
	require.Len(t, row, len(model.FactorNames))

	// The sector block is one-hot.
	sum := 0.0
	for _, v := range row[:model.Encoder.NumSectors()] {
		sum += v
	}
	assert.Equal(t, 1.0, sum)

	_, ok = model.Exposures(date, "UNKNOWN")
	assert.False(t, ok)
}

func TestCumulativeReturns(t *testing.T) {
	p := syntheticPanel(t, 320)
	builder := NewBuilder(ModelConfig{}, zerolog.Nop())
	model, err := builder.Fit(p, testClassification())
	require.NoError(t, err)

	total, ok := model.CumulativeReturn("S7", 21)
	require.True(t, ok)
	assert.False(t, math.IsNaN(total))

	fr := model.CumulativeFactorReturns(21)
	assert.Len(t, fr, len(model.FactorNames))
}

func setupPanelBuilder(t *testing.T) (*PanelBuilder, *cache.QuoteRepository, *cache.FundamentalsRepository) {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file:" + t.Name() + "?mode=memory&cache=shared",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	quotes := cache.NewQuoteRepository(db.Conn(), zerolog.Nop())
	funds := cache.NewFundamentalsRepository(db.Conn(), zerolog.Nop())
	return NewPanelBuilder(quotes, funds, zerolog.Nop()), quotes, funds
}

func TestPanelBuilderBuild(t *testing.T) {
	pb, quotes, funds := setupPanelBuilder(t)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 9)

	var bars []cache.Quote
	price := map[string]float64{"AAPL": 180, "MSFT": 370, "SPY": 470}
	for _, sym := range []string{"AAPL", "MSFT", "SPY"} {
		for i := 0; i < 10; i++ {
			price[sym] *= 1.01
			bars = append(bars, cache.Quote{
				Symbol:        sym,
				Date:          start.AddDate(0, 0, i).Format(cache.DateFormat),
				AdjustedClose: price[sym],
				Volume:        1000,
			})
		}
	}
	require.NoError(t, quotes.Upsert(bars))
	require.NoError(t, funds.UpsertMarketCaps([]cache.MarketCap{
		{Symbol: "AAPL", Date: "2023-12-29", MarketCap: 2.9e12},
		{Symbol: "MSFT", Date: "2023-12-29", MarketCap: 2.7e12},
	}))

	var stmts []cache.FinancialStatement
	for q := 0; q < 4; q++ {
		stmts = append(stmts, cache.FinancialStatement{
			Symbol:     "AAPL",
			PeriodEnd:  fmt.Sprintf("2023-%02d-30", 3*q+3),
			PeriodType: "Q",
			NetIncome:  25e9, Revenue: 90e9, ShareholdersEquity: 70e9,
			TotalDebt: 100e9, SharesOutstanding: 15.5e9,
		})
	}
	require.NoError(t, funds.UpsertStatements(stmts))

	p, err := pb.Build([]string{"AAPL", "MSFT"}, "SPY", start, end)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, p.Symbols())
	assert.Equal(t, 10, p.NumDates())

	// Returns derive from adjusted closes: 1% every day after the first.
	dates := p.Dates()
	r := p.At(panel.ColReturn, dates[1], "AAPL")
	assert.InDelta(t, 0.01, r, 1e-9)
	assert.True(t, panel.IsNull(p.At(panel.ColReturn, dates[0], "AAPL")))

	// The benchmark return is broadcast to every symbol.
	m1 := p.At(panel.ColMarketReturn, dates[1], "AAPL")
	m2 := p.At(panel.ColMarketReturn, dates[1], "MSFT")
	assert.InDelta(t, 0.01, m1, 1e-9)
	assert.Equal(t, m1, m2)

	// Market caps forward-fill from before the window.
	assert.Equal(t, 2.9e12, p.At(panel.ColMarketCap, dates[5], "AAPL"))
	assert.False(t, panel.IsNull(p.At(panel.ColMarketCap, dates[5], "MSFT")))

	// Statement fields join as-of; four quarters give trailing sums.
	assert.Equal(t, 4*25e9, p.At(panel.ColEarnings, dates[5], "AAPL"))
	assert.Equal(t, 70e9, p.At(panel.ColEquity, dates[5], "AAPL"))
	assert.True(t, panel.IsNull(p.At(panel.ColEquity, dates[5], "MSFT")))
}

func TestPanelBuilderEmptyCache(t *testing.T) {
	pb, _, _ := setupPanelBuilder(t)
	_, err := pb.Build([]string{"NONE"}, "SPY",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}
