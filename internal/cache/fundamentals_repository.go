package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"perth/internal/database"
)

// FundamentalsRepository handles market caps, raw fundamentals JSON, CIK
// mappings, and parsed financial statements.
type FundamentalsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewFundamentalsRepository(db *sql.DB, log zerolog.Logger) *FundamentalsRepository {
	return &FundamentalsRepository{db: db, log: log.With().Str("repo", "fundamentals").Logger()}
}

// UpsertMarketCaps stores a batch of market-cap observations.
func (r *FundamentalsRepository) UpsertMarketCaps(caps []MarketCap) error {
	if len(caps) == 0 {
		return nil
	}
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO market_caps (symbol, date, market_cap, cached_at)
			VALUES (?, ?, ?, datetime('now'))
			ON CONFLICT(symbol, date) DO UPDATE SET
				market_cap = excluded.market_cap, cached_at = excluded.cached_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare market-cap upsert: %w", err)
		}
		defer stmt.Close()

		for _, c := range caps {
			symbol := strings.ToUpper(strings.TrimSpace(c.Symbol))
			if _, err := stmt.Exec(symbol, c.Date, c.MarketCap); err != nil {
				return fmt.Errorf("failed to upsert market cap %s %s: %w", symbol, c.Date, err)
			}
		}
		return nil
	})
}

// GetMarketCaps returns cached market caps for a symbol in [start, end],
// date ascending.
func (r *FundamentalsRepository) GetMarketCaps(symbol string, start, end time.Time) ([]MarketCap, error) {
	rows, err := r.db.Query(`
		SELECT symbol, date, market_cap FROM market_caps
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		strings.ToUpper(strings.TrimSpace(symbol)), start.Format(DateFormat), end.Format(DateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to query market caps for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []MarketCap
	for rows.Next() {
		var c MarketCap
		if err := rows.Scan(&c.Symbol, &c.Date, &c.MarketCap); err != nil {
			return nil, fmt.Errorf("failed to scan market cap: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PutFundamentals stores a raw fundamentals payload as JSON.
func (r *FundamentalsRepository) PutFundamentals(symbol, date string, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal fundamentals for %s: %w", symbol, err)
	}
	_, err = r.db.Exec(`
		INSERT INTO fundamentals (symbol, date, data_json, cached_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(symbol, date) DO UPDATE SET
			data_json = excluded.data_json, cached_at = excluded.cached_at`,
		strings.ToUpper(strings.TrimSpace(symbol)), date, string(payload))
	if err != nil {
		return fmt.Errorf("failed to upsert fundamentals %s %s: %w", symbol, date, err)
	}
	return nil
}

// GetFundamentals returns the most recent fundamentals payload at or before
// the given date, or nil when none is cached.
func (r *FundamentalsRepository) GetFundamentals(symbol, date string) (map[string]any, error) {
	var payload string
	err := r.db.QueryRow(`
		SELECT data_json FROM fundamentals
		WHERE symbol = ? AND date <= ?
		ORDER BY date DESC LIMIT 1`,
		strings.ToUpper(strings.TrimSpace(symbol)), date).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query fundamentals for %s: %w", symbol, err)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fundamentals for %s: %w", symbol, err)
	}
	return data, nil
}

// UpsertCIK stores a ticker -> CIK mapping.
func (r *FundamentalsRepository) UpsertCIK(m CompanyCIK) error {
	_, err := r.db.Exec(`
		INSERT INTO company_ciks (symbol, cik, company_name, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(symbol) DO UPDATE SET
			cik = excluded.cik, company_name = excluded.company_name,
			updated_at = excluded.updated_at`,
		strings.ToUpper(strings.TrimSpace(m.Symbol)), m.CIK, m.CompanyName)
	if err != nil {
		return fmt.Errorf("failed to upsert CIK for %s: %w", m.Symbol, err)
	}
	return nil
}

// GetCIK returns the cached CIK for a symbol, or nil when unknown.
func (r *FundamentalsRepository) GetCIK(symbol string) (*CompanyCIK, error) {
	var m CompanyCIK
	var updatedAt string
	err := r.db.QueryRow(`
		SELECT symbol, cik, company_name, updated_at FROM company_ciks WHERE symbol = ?`,
		strings.ToUpper(strings.TrimSpace(symbol))).Scan(&m.Symbol, &m.CIK, &m.CompanyName, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query CIK for %s: %w", symbol, err)
	}
	if t, err := time.Parse("2006-01-02 15:04:05", updatedAt); err == nil {
		m.UpdatedAt = t
	}
	return &m, nil
}

// UpsertStatements stores a batch of parsed financial statements.
func (r *FundamentalsRepository) UpsertStatements(statements []FinancialStatement) error {
	if len(statements) == 0 {
		return nil
	}
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO financial_statements (
				symbol, cik, period_end, period_type, fiscal_year, fiscal_quarter,
				total_assets, total_liabilities, total_debt, shareholders_equity, cash_and_equivalents,
				revenue, gross_profit, operating_income, net_income, eps_basic, eps_diluted,
				operating_cash_flow, capital_expenditures, free_cash_flow, dividends_paid,
				shares_outstanding, cached_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
			ON CONFLICT(symbol, period_end, period_type) DO UPDATE SET
				cik = excluded.cik, fiscal_year = excluded.fiscal_year,
				fiscal_quarter = excluded.fiscal_quarter,
				total_assets = excluded.total_assets,
				total_liabilities = excluded.total_liabilities,
				total_debt = excluded.total_debt,
				shareholders_equity = excluded.shareholders_equity,
				cash_and_equivalents = excluded.cash_and_equivalents,
				revenue = excluded.revenue, gross_profit = excluded.gross_profit,
				operating_income = excluded.operating_income,
				net_income = excluded.net_income,
				eps_basic = excluded.eps_basic, eps_diluted = excluded.eps_diluted,
				operating_cash_flow = excluded.operating_cash_flow,
				capital_expenditures = excluded.capital_expenditures,
				free_cash_flow = excluded.free_cash_flow,
				dividends_paid = excluded.dividends_paid,
				shares_outstanding = excluded.shares_outstanding,
				cached_at = excluded.cached_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement upsert: %w", err)
		}
		defer stmt.Close()

		for _, s := range statements {
			symbol := strings.ToUpper(strings.TrimSpace(s.Symbol))
			if _, err := stmt.Exec(
				symbol, s.CIK, s.PeriodEnd, s.PeriodType, s.FiscalYear, s.FiscalQuarter,
				s.TotalAssets, s.TotalLiabilities, s.TotalDebt, s.ShareholdersEquity, s.CashAndEquivalents,
				s.Revenue, s.GrossProfit, s.OperatingIncome, s.NetIncome, s.EPSBasic, s.EPSDiluted,
				s.OperatingCashFlow, s.CapitalExpenditures, s.FreeCashFlow, s.DividendsPaid,
				s.SharesOutstanding,
			); err != nil {
				return fmt.Errorf("failed to upsert statement %s %s %s: %w", symbol, s.PeriodEnd, s.PeriodType, err)
			}
		}
		return nil
	})
}

// GetStatements returns a symbol's statements of one period type, most
// recent first.
func (r *FundamentalsRepository) GetStatements(symbol, periodType string, limit int) ([]FinancialStatement, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT symbol, cik, period_end, period_type, fiscal_year, fiscal_quarter,
			total_assets, total_liabilities, total_debt, shareholders_equity, cash_and_equivalents,
			revenue, gross_profit, operating_income, net_income, eps_basic, eps_diluted,
			operating_cash_flow, capital_expenditures, free_cash_flow, dividends_paid,
			shares_outstanding
		FROM financial_statements
		WHERE symbol = ? AND period_type = ?
		ORDER BY period_end DESC LIMIT ?`,
		strings.ToUpper(strings.TrimSpace(symbol)), periodType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query statements for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []FinancialStatement
	for rows.Next() {
		var s FinancialStatement
		if err := rows.Scan(
			&s.Symbol, &s.CIK, &s.PeriodEnd, &s.PeriodType, &s.FiscalYear, &s.FiscalQuarter,
			&s.TotalAssets, &s.TotalLiabilities, &s.TotalDebt, &s.ShareholdersEquity, &s.CashAndEquivalents,
			&s.Revenue, &s.GrossProfit, &s.OperatingIncome, &s.NetIncome, &s.EPSBasic, &s.EPSDiluted,
			&s.OperatingCashFlow, &s.CapitalExpenditures, &s.FreeCashFlow, &s.DividendsPaid,
			&s.SharesOutstanding,
		); err != nil {
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
