package out

import (
	"context"
	"time"
)

// =============================================================================
// EmailBodyRepository (MongoDB)
// =============================================================================

// EmailBodyRepository defines the outbound port for mail body storage.
// Bodies are stored separately from metadata and expire after a TTL.
type EmailBodyRepository interface {
	SaveBody(ctx context.Context, body *MailBodyEntity) error
	GetBody(ctx context.Context, emailID int64) (*MailBodyEntity, error)
	BulkSaveBody(ctx context.Context, bodies []*MailBodyEntity) error

	DeleteByAccountID(ctx context.Context, accountID int64) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// MailBodyEntity represents a stored mail body.
type MailBodyEntity struct {
	EmailID    int64
	AccountID  int64
	ExternalID string

	HTML string
	Text string

	OriginalSize   int64
	CompressedSize int64
	IsCompressed   bool

	CachedAt  time.Time
	ExpiresAt time.Time
	TTLDays   int
}

// DefaultBodyTTLDays is the default TTL for stored bodies.
const DefaultBodyTTLDays = 90

// NewMailBodyEntity creates a new body entity with default TTL.
func NewMailBodyEntity(emailID, accountID int64, externalID string) *MailBodyEntity {
	now := time.Now()
	return &MailBodyEntity{
		EmailID:    emailID,
		AccountID:  accountID,
		ExternalID: externalID,
		CachedAt:   now,
		ExpiresAt:  now.AddDate(0, 0, DefaultBodyTTLDays),
		TTLDays:    DefaultBodyTTLDays,
	}
}

// IsExpired returns true if the body has passed its TTL.
func (b *MailBodyEntity) IsExpired() bool {
	return time.Now().After(b.ExpiresAt)
}
