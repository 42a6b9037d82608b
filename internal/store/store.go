package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dalton-wilson/CBM/internal/model"
	"github.com/dalton-wilson/CBM/internal/table"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a table key does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS data_tables (
		key TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		row_count INTEGER NOT NULL DEFAULT 0,
		run_id TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		status TEXT NOT NULL DEFAULT 'running',
		tests INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		run_id TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS viewers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS viewer_sessions (
		token TEXT PRIMARY KEY,
		viewer_id INTEGER NOT NULL REFERENCES viewers(id),
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// PutTable stores t under key, replacing any previous table.
func (s *Store) PutTable(ctx context.Context, key string, t *table.Table) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode table %s: %w", key, err)
	}
	runID, _ := model.RunIDFrom(ctx)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO data_tables (key, body, row_count, run_id, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET body = ?, row_count = ?, run_id = ?, updated_at = ?`,
		key, string(body), t.Len(), runID, time.Now(),
		string(body), t.Len(), runID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("put table %s: %w", key, err)
	}
	return nil
}

// GetTable returns the table stored under key or ErrNotFound.
func (s *Store) GetTable(ctx context.Context, key string) (*table.Table, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM data_tables WHERE key = ?`, key).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("table %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get table %s: %w", key, err)
	}
	var t table.Table
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, fmt.Errorf("decode table %s: %w", key, err)
	}
	return &t, nil
}

// ListTables returns the keys starting with prefix in key order.
func (s *Store) ListTables(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM data_tables WHERE instr(key, ?) = 1 ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list tables %s: %w", prefix, err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeleteTables removes every table whose key starts with prefix.
func (s *Store) DeleteTables(ctx context.Context, prefix string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM data_tables WHERE instr(key, ?) = 1`, prefix)
	if err != nil {
		return fmt.Errorf("delete tables %s: %w", prefix, err)
	}
	return nil
}

// TableCount returns the number of stored tables.
func (s *Store) TableCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM data_tables`).Scan(&count)
	return count, err
}

// StartRun records a new run in the running state.
func (s *Store) StartRun(ctx context.Context, id string, started time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)`,
		id, started, model.RunRunning,
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun stores the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, info model.RunInfo) error {
	finished := time.Now()
	if info.FinishedAt != nil {
		finished = *info.FinishedAt
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, tests = ?, failures = ? WHERE id = ?`,
		finished, info.Status, info.Tests, info.Failures, info.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*model.RunInfo, error) {
	var r model.RunInfo
	var finished sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, status, tests, failures FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &r.Tests, &r.Failures)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

// ListRuns returns runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]model.RunInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, status, tests, failures FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []model.RunInfo
	for rows.Next() {
		var r model.RunInfo
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &r.Tests, &r.Failures); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// MarkImported records the content hash of an input file.
func (s *Store) MarkImported(ctx context.Context, path, hash, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO imported_files (path, hash, run_id, imported_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = ?, run_id = ?, imported_at = ?`,
		path, hash, runID, time.Now(), hash, runID, time.Now(),
	)
	return err
}

// ImportedHash returns the last recorded hash of path, or "" when the file
// was never imported.
func (s *Store) ImportedHash(ctx context.Context, path string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}
