package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists runs and records in a SQLite file.
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

func createTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			config TEXT NOT NULL,
			batch_size INTEGER NOT NULL,
			sample_rate INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			run_id TEXT NOT NULL,
			global_id TEXT NOT NULL,
			batch_id TEXT NOT NULL,
			voice INTEGER NOT NULL,
			params TEXT NOT NULL,
			stats TEXT NOT NULL,
			path TEXT NOT NULL,
			PRIMARY KEY (run_id, global_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

// Close releases the database handle.
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

func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, config, batch_size, sample_rate)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			config = excluded.config,
			batch_size = excluded.batch_size,
			sample_rate = excluded.sample_rate
	`, run.ID, run.CreatedAt.Format(time.RFC3339Nano), run.Config, run.BatchSize, run.SampleRate)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Run{}, false, err
	}
	var (
		run     Run
		created string
	)
	err = db.QueryRowContext(ctx,
		`SELECT id, created_at, config, batch_size, sample_rate FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &created, &run.Config, &run.BatchSize, &run.SampleRate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, err
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Run{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) SaveRecords(ctx context.Context, records []Record) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range records {
		params, err := json.Marshal(r.Params)
		if err != nil {
			return err
		}
		stats, err := json.Marshal(r.Stats)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO records (run_id, global_id, batch_id, voice, params, stats, path)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, global_id) DO UPDATE SET
				batch_id = excluded.batch_id,
				voice = excluded.voice,
				params = excluded.params,
				stats = excluded.stats,
				path = excluded.path
		`, r.RunID, formatID(r.GlobalID), formatID(r.BatchID), r.Voice, string(params), string(stats), r.Path)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListRecords(ctx context.Context, runID string) ([]Record, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT global_id, batch_id, voice, params, stats, path
		FROM records WHERE run_id = ? ORDER BY global_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r               Record
			globalID, batch string
			params, stats   string
		)
		if err := rows.Scan(&globalID, &batch, &r.Voice, &params, &stats, &r.Path); err != nil {
			return nil, err
		}
		r.RunID = runID
		if r.GlobalID, err = parseID(globalID); err != nil {
			return nil, err
		}
		if r.BatchID, err = parseID(batch); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
			return nil, fmt.Errorf("decode params of voice %d: %w", r.GlobalID, err)
		}
		if err := json.Unmarshal([]byte(stats), &r.Stats); err != nil {
			return nil, fmt.Errorf("decode stats of voice %d: %w", r.GlobalID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ids are stored as zero-padded decimal text: SQLite integers are signed
// 64-bit, and the padding keeps ORDER BY numeric.
func formatID(id uint64) string {
	return fmt.Sprintf("%020d", id)
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode id %q: %w", s, err)
	}
	return id, nil
}
