package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/pthm-cable/pursuit/telemetry"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, seed, config)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			seed = excluded.seed,
			config = excluded.config
	`, run.ID, run.Seed, run.Config)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return RunRecord{}, false, err
	}

	run := RunRecord{ID: id}
	err = db.QueryRowContext(ctx, `SELECT seed, config FROM runs WHERE id = ?`, id).Scan(&run.Seed, &run.Config)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, false, nil
		}
		return RunRecord{}, false, err
	}
	return run, true, nil
}

func (s *SQLiteStore) AppendEpisodes(ctx context.Context, runID string, records []telemetry.EpisodeRecord) error {
	if len(records) == 0 {
		return nil
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO episodes (
			run_id, episode, outcome, steps, captures, prey_census,
			prey_return, predator_return, mean_survival, first_capture, end_tick
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, episode) DO UPDATE SET
			outcome = excluded.outcome,
			steps = excluded.steps,
			captures = excluded.captures,
			prey_census = excluded.prey_census,
			prey_return = excluded.prey_return,
			predator_return = excluded.predator_return,
			mean_survival = excluded.mean_survival,
			first_capture = excluded.first_capture,
			end_tick = excluded.end_tick
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			runID, r.Episode, r.Outcome, r.Steps, r.Captures, r.PreyCensus,
			r.PreyReturn, r.PredatorReturn, r.MeanSurvival, r.FirstCapture, r.EndTick,
		); err != nil {
			return fmt.Errorf("insert episode %d: %w", r.Episode, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListEpisodes(ctx context.Context, runID string) ([]telemetry.EpisodeRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT episode, outcome, steps, captures, prey_census,
			prey_return, predator_return, mean_survival, first_capture, end_tick
		FROM episodes WHERE run_id = ? ORDER BY episode
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.EpisodeRecord
	for rows.Next() {
		r := telemetry.EpisodeRecord{RunID: runID}
		if err := rows.Scan(
			&r.Episode, &r.Outcome, &r.Steps, &r.Captures, &r.PreyCensus,
			&r.PreyReturn, &r.PredatorReturn, &r.MeanSurvival, &r.FirstCapture, &r.EndTick,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			config TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS episodes (
			run_id TEXT NOT NULL,
			episode INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			steps INTEGER NOT NULL,
			captures INTEGER NOT NULL,
			prey_census INTEGER NOT NULL,
			prey_return REAL NOT NULL,
			predator_return REAL NOT NULL,
			mean_survival REAL NOT NULL,
			first_capture INTEGER NOT NULL,
			end_tick INTEGER NOT NULL,
			PRIMARY KEY (run_id, episode)
		);
	`)
	return err
}
