package cache

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"perth/internal/database"
)

// coverageThreshold is the fraction of calendar days in a requested window
// that must have cached rows for the range to count as present.
const coverageThreshold = 0.70

// QuoteRepository handles daily bar storage.
type QuoteRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewQuoteRepository(db *sql.DB, log zerolog.Logger) *QuoteRepository {
	return &QuoteRepository{db: db, log: log.With().Str("repo", "quotes").Logger()}
}

// Upsert stores a batch of bars, replacing rows already cached for the same
// (symbol, date).
func (r *QuoteRepository) Upsert(quotes []Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO quotes (symbol, date, open, high, low, close, volume, adjusted_close, cached_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
			ON CONFLICT(symbol, date) DO UPDATE SET
				open = excluded.open, high = excluded.high, low = excluded.low,
				close = excluded.close, volume = excluded.volume,
				adjusted_close = excluded.adjusted_close, cached_at = excluded.cached_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare quote upsert: %w", err)
		}
		defer stmt.Close()

		for _, q := range quotes {
			symbol := strings.ToUpper(strings.TrimSpace(q.Symbol))
			if _, err := stmt.Exec(symbol, q.Date, q.Open, q.High, q.Low, q.Close, q.Volume, q.AdjustedClose); err != nil {
				return fmt.Errorf("failed to upsert quote %s %s: %w", symbol, q.Date, err)
			}
		}
		return nil
	})
}

// GetRange returns the cached bars for a symbol in [start, end], date
// ascending.
func (r *QuoteRepository) GetRange(symbol string, start, end time.Time) ([]Quote, error) {
	rows, err := r.db.Query(`
		SELECT symbol, date, open, high, low, close, volume, adjusted_close
		FROM quotes
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		strings.ToUpper(strings.TrimSpace(symbol)), start.Format(DateFormat), end.Format(DateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes for %s: %w", symbol, err)
	}
	defer rows.Close()

	var quotes []Quote
	for rows.Next() {
		var q Quote
		if err := rows.Scan(&q.Symbol, &q.Date, &q.Open, &q.High, &q.Low, &q.Close, &q.Volume, &q.AdjustedClose); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// HasRange reports whether the cache covers [start, end] for a symbol: the
// row count must reach 70% of the calendar days in the window.
func (r *QuoteRepository) HasRange(symbol string, start, end time.Time) (bool, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM quotes WHERE symbol = ? AND date >= ? AND date <= ?`,
		strings.ToUpper(strings.TrimSpace(symbol)), start.Format(DateFormat), end.Format(DateFormat)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count quotes for %s: %w", symbol, err)
	}

	calendarDays := int(end.Sub(start).Hours()/24) + 1
	if calendarDays < 1 {
		return false, nil
	}
	return float64(count) >= float64(calendarDays)*coverageThreshold, nil
}

// LatestDate returns the most recent cached bar date for a symbol, or the
// empty string when none is cached.
func (r *QuoteRepository) LatestDate(symbol string) (string, error) {
	var date sql.NullString
	err := r.db.QueryRow(`SELECT MAX(date) FROM quotes WHERE symbol = ?`,
		strings.ToUpper(strings.TrimSpace(symbol))).Scan(&date)
	if err != nil {
		return "", fmt.Errorf("failed to query latest quote date for %s: %w", symbol, err)
	}
	if !date.Valid {
		return "", nil
	}
	return date.String, nil
}

// Purge removes all cached bars for a symbol.
func (r *QuoteRepository) Purge(symbol string) error {
	_, err := r.db.Exec(`DELETE FROM quotes WHERE symbol = ?`, strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return fmt.Errorf("failed to purge quotes for %s: %w", symbol, err)
	}
	return nil
}
