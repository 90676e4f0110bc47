package database

import (
	"context"
	"fmt"

	"campusmart/models"
)

// CreateSession stores a login session for userID
func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		session.ID, session.UserID, toUnix(session.CreatedAt), toUnix(session.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session that has not expired yet
func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session := &models.Session{}
	var createdAt, expiresAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = ? AND expires_at > ?",
		sessionID, toUnix(s.now()),
	).Scan(&session.ID, &session.UserID, &createdAt, &expiresAt)
	if err != nil {
		return nil, notFound(err)
	}
	session.CreatedAt = fromUnix(createdAt)
	session.ExpiresAt = fromUnix(expiresAt)
	return session, nil
}

// DeleteSession removes a session (logout)
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	return err
}

// CleanupExpiredSessions removes every expired session and returns how many went
func (s *Store) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", toUnix(s.now()))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
