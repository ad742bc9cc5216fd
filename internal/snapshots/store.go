// Package snapshots persists computed risk-model outputs so repeated runs
// over the same window skip the estimation pipeline.
package snapshots

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot is one serialized risk-model state.
type Snapshot struct {
	ID            string               `msgpack:"id"`
	ModelDate     string               `msgpack:"model_date"`
	FactorNames   []string             `msgpack:"factor_names"`
	Dates         []string             `msgpack:"dates"`
	FactorReturns [][]float64          `msgpack:"factor_returns"`
	Covariance    [][]float64          `msgpack:"covariance"`
	SpecificRisk  map[string]float64   `msgpack:"specific_risk"`
	Exposures     map[string][]float64 `msgpack:"exposures"`
	Regime        string               `msgpack:"regime"`
	RegimeScale   float64              `msgpack:"regime_scale"`
}

// Store reads and writes snapshots in the cache database.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("component", "snapshots").Logger()}
}

// Save serializes a snapshot and stores it, returning the assigned ID.
func (s *Store) Save(snap *Snapshot) (string, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	payload, err := msgpack.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO model_snapshots (id, model_date, created_at, payload)
		VALUES (?, ?, ?, ?)`,
		snap.ID, snap.ModelDate, time.Now().UTC().Format(time.RFC3339), payload)
	if err != nil {
		return "", fmt.Errorf("failed to store snapshot %s: %w", snap.ID, err)
	}

	s.log.Debug().Str("id", snap.ID).Str("model_date", snap.ModelDate).
		Int("bytes", len(payload)).Msg("stored model snapshot")
	return snap.ID, nil
}

// Load reads one snapshot by ID, or nil when absent.
func (s *Store) Load(id string) (*Snapshot, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM model_snapshots WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", id, err)
	}
	return decode(payload)
}

// Latest returns the most recently created snapshot for a model date, or
// the overall latest when modelDate is empty. Nil when none exists.
func (s *Store) Latest(modelDate string) (*Snapshot, error) {
	query := `SELECT payload FROM model_snapshots`
	args := []any{}
	if modelDate != "" {
		query += ` WHERE model_date = ?`
		args = append(args, modelDate)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	var payload []byte
	err := s.db.QueryRow(query, args...).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	return decode(payload)
}

// Prune deletes snapshots older than the retention window, returning how
// many rows were removed.
func (s *Store) Prune(olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM model_snapshots WHERE created_at < ?`,
		olderThan.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func decode(payload []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := msgpack.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}
