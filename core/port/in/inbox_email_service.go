// Package in defines inbound ports (driving ports) for the application.
package in

import (
	"context"
	"time"

	"github.com/google/uuid"

	"inbox_server/core/domain"
)

// =============================================================================
// Email Service
// =============================================================================

// ListEmailsQuery represents list filter options from the API.
type ListEmailsQuery struct {
	AccountID     *int64
	CategoryID    *int64
	Uncategorized bool
	IsRead        *bool
	Search        string
	Limit         int
	Offset        int
}

// UpdateEmailRequest represents a partial email update.
type UpdateEmailRequest struct {
	CategoryID    *int64 `json:"category_id"`
	ClearCategory bool   `json:"clear_category"`
	IsRead        *bool  `json:"is_read"`
}

type EmailService interface {
	GetEmail(ctx context.Context, userID uuid.UUID, emailID int64) (*domain.Email, error)
	ListEmails(ctx context.Context, userID uuid.UUID, q *ListEmailsQuery) ([]*domain.Email, int, error)
	UpdateEmail(ctx context.Context, userID uuid.UUID, emailID int64, req *UpdateEmailRequest) (*domain.Email, error)
	// DeleteEmail trashes the message at the provider and removes the row.
	DeleteEmail(ctx context.Context, userID uuid.UUID, emailID int64) error
}

// =============================================================================
// Sync Service
// =============================================================================

// SyncRequest represents a manual sync trigger.
type SyncRequest struct {
	// AccountID of nil syncs every connected account.
	AccountID  *int64     `json:"account_id"`
	MaxResults int64      `json:"max_results"`
	// OlderThan switches to historical mode: all mail received before the
	// given date, inbox filter dropped.
	OlderThan *time.Time `json:"older_than"`
}

// RecategorizeRequest reruns classification over stored emails.
type RecategorizeRequest struct {
	AccountID         *int64 `json:"account_id"`
	OnlyUncategorized bool   `json:"only_uncategorized"`
}

// PushReceipt is the webhook's disposition for one notification.
type PushReceipt struct {
	Status string `json:"status"` // "accepted" | "ignored" | "ok"
	Reason string `json:"reason,omitempty"`
}

type SyncService interface {
	Sync(ctx context.Context, userID uuid.UUID, req *SyncRequest) (*domain.SyncSummary, error)
	Recategorize(ctx context.Context, userID uuid.UUID, req *RecategorizeRequest) (*domain.SyncSummary, error)

	// HandlePushNotification validates a decoded Pub/Sub notification and,
	// when the target account has push sync enabled, queues an incremental
	// sync job. Never blocks on the sync itself.
	HandlePushNotification(ctx context.Context, emailAddress string, historyID uint64) (*PushReceipt, error)

	// SyncFromPush runs the queued incremental sync for one account.
	// Worker-side entry point.
	SyncFromPush(ctx context.Context, accountID int64, historyID uint64) (*domain.SyncSummary, error)
}
