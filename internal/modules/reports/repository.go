package reports

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Repository stores runs in SQLite. The run payload is a msgpack blob:
// run contents evolve with the model and a rigid column set would need a
// migration per field.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a run repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// InitSchema creates the runs table if needed.
func (r *Repository) InitSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			created_at TEXT NOT NULL,
			payload BLOB NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}
	return nil
}

// Save assigns the run an id and timestamp and persists it. The run is
// returned with both fields filled.
func (r *Repository) Save(run Run) (Run, error) {
	run.ID = uuid.NewString()
	run.CreatedAt = time.Now().UTC()

	payload, err := msgpack.Marshal(run)
	if err != nil {
		return Run{}, fmt.Errorf("failed to serialize run: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO runs (id, kind, created_at, payload) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.CreatedAt.Format(time.RFC3339), payload,
	)
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}

	r.log.Debug().Str("run_id", run.ID).Str("kind", string(run.Kind)).Msg("Saved run")
	return run, nil
}

// Get loads one run by id. Returns sql.ErrNoRows when absent.
func (r *Repository) Get(id string) (Run, error) {
	var payload []byte
	err := r.db.QueryRow(`SELECT payload FROM runs WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		return Run{}, err
	}

	var run Run
	if err := msgpack.Unmarshal(payload, &run); err != nil {
		return Run{}, fmt.Errorf("failed to deserialize run %s: %w", id, err)
	}
	return run, nil
}

// List returns the most recent runs, newest first.
func (r *Repository) List(limit int) ([]Run, error) {
	rows, err := r.db.Query(
		`SELECT payload FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var run Run
		if err := msgpack.Unmarshal(payload, &run); err != nil {
			return nil, fmt.Errorf("failed to deserialize run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
