package cache

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// UniverseRepository handles universe membership rows.
type UniverseRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewUniverseRepository(db *sql.DB, log zerolog.Logger) *UniverseRepository {
	return &UniverseRepository{db: db, log: log.With().Str("repo", "universe").Logger()}
}

// Upsert adds or updates a security, reactivating it if it was inactive.
func (r *UniverseRepository) Upsert(sec Security) error {
	_, err := r.db.Exec(`
		INSERT INTO universe (symbol, name, sector, industry, added_at, active)
		VALUES (?, ?, ?, ?, datetime('now'), 1)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name, sector = excluded.sector,
			industry = excluded.industry, active = 1`,
		strings.ToUpper(strings.TrimSpace(sec.Symbol)), sec.Name, sec.Sector, sec.Industry)
	if err != nil {
		return fmt.Errorf("failed to upsert security %s: %w", sec.Symbol, err)
	}
	return nil
}

// GetBySymbol returns one security, or nil when not present.
func (r *UniverseRepository) GetBySymbol(symbol string) (*Security, error) {
	row := r.db.QueryRow(`
		SELECT symbol, name, sector, industry, added_at, active
		FROM universe WHERE symbol = ?`,
		strings.ToUpper(strings.TrimSpace(symbol)))

	sec, err := scanSecurity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query security %s: %w", symbol, err)
	}
	return sec, nil
}

// List returns all active securities, optionally restricted to one sector.
func (r *UniverseRepository) List(sector string) ([]Security, error) {
	query := `
		SELECT symbol, name, sector, industry, added_at, active
		FROM universe WHERE active = 1`
	args := []any{}
	if sector != "" {
		query += ` AND sector = ?`
		args = append(args, sector)
	}
	query += ` ORDER BY symbol ASC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query universe: %w", err)
	}
	defer rows.Close()

	var out []Security
	for rows.Next() {
		sec, err := scanSecurity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		out = append(out, *sec)
	}
	return out, rows.Err()
}

// Sectors returns the distinct sector names of active securities, sorted.
func (r *UniverseRepository) Sectors() ([]string, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT sector FROM universe
		WHERE active = 1 AND sector != ''
		ORDER BY sector ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sectors: %w", err)
	}
	defer rows.Close()

	var sectors []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan sector: %w", err)
		}
		sectors = append(sectors, s)
	}
	return sectors, rows.Err()
}

// Classifications returns the symbol -> sector map for the active universe,
// used to build the one-hot sector block.
func (r *UniverseRepository) Classifications() (map[string]string, error) {
	secs, err := r.List("")
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(secs))
	for _, sec := range secs {
		if sec.Sector != "" {
			out[sec.Symbol] = sec.Sector
		}
	}
	return out, nil
}

// Deactivate marks a security inactive without deleting its history.
func (r *UniverseRepository) Deactivate(symbol string) error {
	_, err := r.db.Exec(`UPDATE universe SET active = 0 WHERE symbol = ?`,
		strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return fmt.Errorf("failed to deactivate %s: %w", symbol, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSecurity(row rowScanner) (*Security, error) {
	var sec Security
	var addedAt string
	var active int
	if err := row.Scan(&sec.Symbol, &sec.Name, &sec.Sector, &sec.Industry, &addedAt, &active); err != nil {
		return nil, err
	}
	sec.Active = active != 0
	if t, err := time.Parse("2006-01-02 15:04:05", addedAt); err == nil {
		sec.AddedAt = t
	}
	return &sec, nil
}
