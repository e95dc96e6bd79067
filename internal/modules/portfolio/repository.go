package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles holdings database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a holdings repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "holdings").Logger(),
	}
}

// InitSchema creates the holdings table if needed.
func (r *Repository) InitSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS holdings (
			ticker TEXT PRIMARY KEY,
			weight REAL NOT NULL,
			updated_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create holdings table: %w", err)
	}
	return nil
}

// GetAll returns all holdings ordered by ticker.
func (r *Repository) GetAll() ([]Holding, error) {
	rows, err := r.db.Query(`SELECT ticker, weight, updated_at FROM holdings ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []Holding
	for rows.Next() {
		var h Holding
		var updatedAt string
		if err := rows.Scan(&h.Ticker, &h.Weight, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			h.UpdatedAt = ts
		}
		holdings = append(holdings, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return holdings, nil
}

// GetWeights returns the current allocation keyed by ticker. An empty
// portfolio returns an empty map, not an error.
func (r *Repository) GetWeights() (map[string]float64, error) {
	holdings, err := r.GetAll()
	if err != nil {
		return nil, err
	}

	weights := make(map[string]float64, len(holdings))
	for _, h := range holdings {
		weights[h.Ticker] = h.Weight
	}
	return weights, nil
}

// ReplaceAll swaps the stored allocation for the given weights in one
// transaction. Zero weights are not stored.
func (r *Repository) ReplaceAll(weights map[string]float64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM holdings`); err != nil {
		return fmt.Errorf("failed to clear holdings: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO holdings (ticker, weight, updated_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	stored := 0
	for ticker, weight := range weights {
		if weight == 0 {
			continue
		}
		if _, err := stmt.Exec(ticker, weight, now); err != nil {
			return fmt.Errorf("failed to insert holding %s: %w", ticker, err)
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit holdings: %w", err)
	}

	r.log.Info().Int("num_holdings", stored).Msg("Replaced stored allocation")
	return nil
}
