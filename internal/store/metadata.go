package store

import (
	"context"
	"database/sql"
)

// Metadata keys written by the pipeline.
const (
	MetaLastRun    = "last_run_id"
	MetaSourceRoot = "source_root"
	MetaRosterFile = "roster_file"
)

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// LastRun returns the most recently finished run, or nil before the first
// run.
func (s *Store) LastRun(ctx context.Context) (*RunRef, error) {
	id, err := s.GetMetadata(ctx, MetaLastRun)
	if err != nil || id == "" {
		return nil, err
	}
	root, err := s.GetMetadata(ctx, MetaSourceRoot)
	if err != nil {
		return nil, err
	}
	roster, err := s.GetMetadata(ctx, MetaRosterFile)
	if err != nil {
		return nil, err
	}
	return &RunRef{ID: id, SourceRoot: root, RosterFile: roster}, nil
}

// SetLastRun records the inputs of the latest run.
func (s *Store) SetLastRun(ctx context.Context, ref RunRef) error {
	pairs := []struct{ k, v string }{
		{MetaLastRun, ref.ID},
		{MetaSourceRoot, ref.SourceRoot},
		{MetaRosterFile, ref.RosterFile},
	}
	for _, p := range pairs {
		if err := s.SetMetadata(ctx, p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// RunRef identifies the latest run and its inputs.
type RunRef struct {
	ID         string
	SourceRoot string
	RosterFile string
}
