package database

import (
	"context"
	"fmt"

	"campusmart/models"
)

// CreateBlock records that blockerID blocked blockedID. ErrDuplicate is
// returned when the pair already exists.
func (s *Store) CreateBlock(ctx context.Context, blockerID, blockedID string) (*models.BlockedUser, error) {
	block := &models.BlockedUser{
		ID:        newID(),
		BlockerID: blockerID,
		BlockedID: blockedID,
		CreatedAt: fromUnix(toUnix(s.now())),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO blocked_users (id, blocker_id, blocked_id, created_at) VALUES (?, ?, ?, ?)",
		block.ID, block.BlockerID, block.BlockedID, toUnix(block.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert block: %w", err)
	}
	return block, nil
}

// DeleteBlock removes a block. It reports whether a block existed.
func (s *Store) DeleteBlock(ctx context.Context, blockerID, blockedID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM blocked_users WHERE blocker_id = ? AND blocked_id = ?", blockerID, blockedID)
	if err != nil {
		return false, fmt.Errorf("delete block: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// IsBlocked reports whether blockerID has blocked blockedID. Sends and
// chat access do not consult it yet: whether a block should stop delivery
// is still an open policy decision.
func (s *Store) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM blocked_users WHERE blocker_id = ? AND blocked_id = ?", blockerID, blockedID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query block: %w", err)
	}
	return n > 0, nil
}
