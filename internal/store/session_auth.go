package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"
)

const viewerSessionTTL = 12 * time.Hour

// ViewerSession is a signed-in viewer's cookie token.
type ViewerSession struct {
	Token     string
	ViewerID  int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CreateViewerSession starts a session for a viewer and returns its token.
func (s *Store) CreateViewerSession(ctx context.Context, viewerID int64) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO viewer_sessions (token, viewer_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, viewerID, now, now.Add(viewerSessionTTL),
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetViewerSession returns the session for token, or nil if it is unknown
// or expired. Expired sessions are removed.
func (s *Store) GetViewerSession(ctx context.Context, token string) (*ViewerSession, error) {
	var sess ViewerSession
	err := s.db.QueryRowContext(ctx,
		`SELECT token, viewer_id, created_at, expires_at FROM viewer_sessions WHERE token = ?`, token,
	).Scan(&sess.Token, &sess.ViewerID, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteViewerSession(ctx, token)
		return nil, nil
	}
	return &sess, nil
}

// DeleteViewerSession removes a session token.
func (s *Store) DeleteViewerSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM viewer_sessions WHERE token = ?`, token)
	return err
}

// CleanupExpiredSessions removes all expired viewer sessions.
func (s *Store) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM viewer_sessions WHERE expires_at < ?`, time.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
