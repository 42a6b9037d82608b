package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Viewer is an account allowed to browse reports.
type Viewer struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// UpsertViewer creates a viewer or replaces its password hash.
func (s *Store) UpsertViewer(ctx context.Context, username, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO viewers (username, password_hash, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(username) DO UPDATE SET password_hash = ?`,
		username, passwordHash, time.Now(), passwordHash,
	)
	if err != nil {
		slog.Error("failed to save viewer", "username", username, "error", err)
		return err
	}
	slog.Info("saved viewer", "username", username)
	return nil
}

// GetViewer returns a viewer by username, or nil if there is none.
func (s *Store) GetViewer(ctx context.Context, username string) (*Viewer, error) {
	var v Viewer
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM viewers WHERE username = ?`, username,
	).Scan(&v.ID, &v.Username, &v.PasswordHash, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ViewerCount returns the number of viewer accounts.
func (s *Store) ViewerCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM viewers`).Scan(&count)
	return count, err
}

// GetViewerByID returns a viewer by ID, or nil if there is none.
func (s *Store) GetViewerByID(ctx context.Context, id int64) (*Viewer, error) {
	var v Viewer
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM viewers WHERE id = ?`, id,
	).Scan(&v.ID, &v.Username, &v.PasswordHash, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
