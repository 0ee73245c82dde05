package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account is a connected Gmail mailbox owned by a user. OAuth tokens are
// stored encrypted; the auth service encrypts and decrypts at the boundary.
type Account struct {
	ID           int64     `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"token_expiry"`

	// Sync cursors
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
	LastHistoryID *string    `json:"-"`

	// Push notification watch
	WatchExpiration *time.Time `json:"watch_expiration,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// WatchActive reports whether the push notification watch is currently live.
// An expiration exactly at now counts as expired.
func (a *Account) WatchActive(now time.Time) bool {
	return a.WatchExpiration != nil && a.WatchExpiration.After(now)
}

// HasSynced reports whether the account completed at least one sync.
func (a *Account) HasSynced() bool {
	return a.LastSyncedAt != nil
}

// UserSettings holds per-user preferences.
type UserSettings struct {
	UserID     uuid.UUID `json:"user_id"`
	SyncOnPush bool      `json:"sync_on_push"`
	UpdatedAt  time.Time `json:"updated_at"`
}
