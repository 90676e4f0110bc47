package models

import "time"

// BlockedUser records that Blocker no longer wants to hear from Blocked.
// Blocking is informational only and does not stop delivery.
type BlockedUser struct {
	ID        string    `json:"id"`
	BlockerID string    `json:"blockerId"`
	BlockedID string    `json:"blockedId"`
	CreatedAt time.Time `json:"createdAt"`
}
