package in

import (
	"context"

	"github.com/google/uuid"

	"inbox_server/core/domain"
)

// =============================================================================
// Account Service
// =============================================================================

type AccountService interface {
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]*domain.Account, error)
	// Disconnect removes the account and its stored mail. The account whose
	// address matches the user's login email cannot be removed while it is
	// the only connected account.
	Disconnect(ctx context.Context, userID uuid.UUID, userEmail string, accountID int64) error
}

// =============================================================================
// Watch Service
// =============================================================================

// WatchStatus reports the push subscription state for an account.
type WatchStatus struct {
	Active     bool    `json:"active"`
	Expiration *string `json:"expiration,omitempty"`
	HistoryID  *string `json:"history_id,omitempty"`
}

type WatchService interface {
	EnableWatch(ctx context.Context, userID uuid.UUID, accountID int64) (*WatchStatus, error)
	DisableWatch(ctx context.Context, userID uuid.UUID, accountID int64) error
	GetWatchStatus(ctx context.Context, userID uuid.UUID, accountID int64) (*WatchStatus, error)

	// RenewExpiring queues renewal jobs for subscriptions nearing expiry.
	// Scheduler entry point; returns the number queued.
	RenewExpiring(ctx context.Context) (int, error)

	// RenewAccount re-registers one account's subscription. Worker-side
	// entry point for queued renewal jobs.
	RenewAccount(ctx context.Context, accountID int64) error
}

// =============================================================================
// Settings Service
// =============================================================================

// UpdateSettingsRequest toggles per-user sync behavior.
type UpdateSettingsRequest struct {
	SyncOnPush *bool `json:"sync_on_push"`
}

type SettingsService interface {
	GetSettings(ctx context.Context, userID uuid.UUID) (*domain.UserSettings, error)
	UpdateSettings(ctx context.Context, userID uuid.UUID, req *UpdateSettingsRequest) (*domain.UserSettings, error)
}
