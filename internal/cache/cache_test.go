package cache

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perth/internal/database"
)

// setupTestDB creates an in-memory cache database with the full schema.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file:" + t.Name() + "?mode=memory&cache=shared",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func day(s string) time.Time {
	t, _ := time.Parse(DateFormat, s)
	return t
}

func TestQuoteUpsertAndGetRange(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuoteRepository(db.Conn(), zerolog.Nop())

	quotes := []Quote{
		{Symbol: "aapl", Date: "2024-01-02", Close: 185.5, AdjustedClose: 185.0, Volume: 1000},
		{Symbol: "AAPL", Date: "2024-01-03", Close: 186.0, AdjustedClose: 185.5, Volume: 1100},
	}
	require.NoError(t, repo.Upsert(quotes))

	got, err := repo.GetRange("AAPL", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, "2024-01-02", got[0].Date)
	assert.Equal(t, 185.0, got[0].AdjustedClose)

	// Upserting the same (symbol, date) replaces the row.
	require.NoError(t, repo.Upsert([]Quote{{Symbol: "AAPL", Date: "2024-01-02", AdjustedClose: 190.0}}))
	got, err = repo.GetRange("AAPL", day("2024-01-02"), day("2024-01-02"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 190.0, got[0].AdjustedClose)
}

func TestQuoteHasRangeCoverage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuoteRepository(db.Conn(), zerolog.Nop())

	// 10-day window; the 70% rule needs at least 7 rows.
	start, end := day("2024-01-01"), day("2024-01-10")
	var quotes []Quote
	for i := 0; i < 6; i++ {
		quotes = append(quotes, Quote{Symbol: "MSFT", Date: start.AddDate(0, 0, i).Format(DateFormat)})
	}
	require.NoError(t, repo.Upsert(quotes))

	ok, err := repo.HasRange("MSFT", start, end)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Upsert([]Quote{{Symbol: "MSFT", Date: "2024-01-07"}}))
	ok, err = repo.HasRange("MSFT", start, end)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQuoteLatestDate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuoteRepository(db.Conn(), zerolog.Nop())

	date, err := repo.LatestDate("NVDA")
	require.NoError(t, err)
	assert.Equal(t, "", date)

	require.NoError(t, repo.Upsert([]Quote{
		{Symbol: "NVDA", Date: "2024-02-01"},
		{Symbol: "NVDA", Date: "2024-02-05"},
	}))
	date, err = repo.LatestDate("NVDA")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-05", date)
}

func TestUniverseRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUniverseRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.Upsert(Security{Symbol: "AAPL", Name: "Apple Inc.", Sector: "Technology"}))
	require.NoError(t, repo.Upsert(Security{Symbol: "MSFT", Name: "Microsoft", Sector: "Technology"}))
	require.NoError(t, repo.Upsert(Security{Symbol: "XOM", Name: "Exxon Mobil", Sector: "Energy"}))

	all, err := repo.List("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	tech, err := repo.List("Technology")
	require.NoError(t, err)
	require.Len(t, tech, 2)
	assert.Equal(t, "AAPL", tech[0].Symbol)

	sectors, err := repo.Sectors()
	require.NoError(t, err)
	assert.Equal(t, []string{"Energy", "Technology"}, sectors)

	classes, err := repo.Classifications()
	require.NoError(t, err)
	assert.Equal(t, "Energy", classes["XOM"])

	require.NoError(t, repo.Deactivate("XOM"))
	all, err = repo.List("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	sec, err := repo.GetBySymbol("XOM")
	require.NoError(t, err)
	require.NotNil(t, sec)
	assert.False(t, sec.Active)

	// Re-upserting reactivates.
	require.NoError(t, repo.Upsert(Security{Symbol: "XOM", Sector: "Energy"}))
	sec, err = repo.GetBySymbol("XOM")
	require.NoError(t, err)
	assert.True(t, sec.Active)
}

func TestMarketCaps(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFundamentalsRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.UpsertMarketCaps([]MarketCap{
		{Symbol: "AAPL", Date: "2024-01-02", MarketCap: 2.9e12},
		{Symbol: "AAPL", Date: "2024-01-03", MarketCap: 2.95e12},
	}))

	caps, err := repo.GetMarketCaps("AAPL", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	require.Len(t, caps, 2)
	assert.Equal(t, 2.9e12, caps[0].MarketCap)
}

func TestFundamentalsJSONRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFundamentalsRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.PutFundamentals("AAPL", "2024-01-15", map[string]any{
		"book_value": 62.0e9,
		"earnings":   97.0e9,
	}))

	// Lookup at a later date returns the most recent payload at or before.
	data, err := repo.GetFundamentals("AAPL", "2024-02-01")
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, 62.0e9, data["book_value"])

	// Nothing cached before the payload date.
	data, err = repo.GetFundamentals("AAPL", "2024-01-01")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestCIKMapping(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFundamentalsRepository(db.Conn(), zerolog.Nop())

	missing, err := repo.GetCIK("AAPL")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.UpsertCIK(CompanyCIK{Symbol: "AAPL", CIK: "0000320193", CompanyName: "Apple Inc."}))
	got, err := repo.GetCIK("aapl")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "0000320193", got.CIK)
}

func TestFinancialStatements(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFundamentalsRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.UpsertStatements([]FinancialStatement{
		{
			Symbol: "AAPL", CIK: "0000320193", PeriodEnd: "2023-12-30", PeriodType: "Q",
			FiscalYear: 2024, FiscalQuarter: 1,
			NetIncome: 33.9e9, ShareholdersEquity: 74.1e9, TotalDebt: 108.0e9,
			Revenue: 119.6e9, SharesOutstanding: 15.5e9,
		},
		{
			Symbol: "AAPL", CIK: "0000320193", PeriodEnd: "2023-09-30", PeriodType: "Q",
			FiscalYear: 2023, FiscalQuarter: 4,
			NetIncome: 23.0e9, Revenue: 89.5e9,
		},
	}))

	stmts, err := repo.GetStatements("AAPL", "Q", 10)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	// Most recent first.
	assert.Equal(t, "2023-12-30", stmts[0].PeriodEnd)
	assert.Equal(t, 33.9e9, stmts[0].NetIncome)

	// Replacing an existing period updates in place.
	require.NoError(t, repo.UpsertStatements([]FinancialStatement{
		{Symbol: "AAPL", PeriodEnd: "2023-12-30", PeriodType: "Q", NetIncome: 34.0e9},
	}))
	stmts, err = repo.GetStatements("AAPL", "Q", 10)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, 34.0e9, stmts[0].NetIncome)
}
