package out

import (
	"context"
	"time"

	"github.com/google/uuid"

	"inbox_server/core/domain"
)

// =============================================================================
// Account Repository (PostgreSQL)
// =============================================================================

// AccountRepository defines the outbound port for connected account persistence.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByUserAndID(ctx context.Context, userID uuid.UUID, id int64) (*domain.Account, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Account, error)
	// GetByEmailAddress looks up an account by its provider mailbox address.
	// Used by the push webhook, which carries no user identity.
	GetByEmailAddress(ctx context.Context, email string) (*domain.Account, error)
	// ListExpiringWatch returns accounts whose push subscription expires
	// before the given time (expired ones included).
	ListExpiringWatch(ctx context.Context, before time.Time) ([]*domain.Account, error)
	Delete(ctx context.Context, id int64) error

	UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiry time.Time) error
	UpdateLastSyncedAt(ctx context.Context, id int64, syncedAt time.Time) error
	UpdateHistoryID(ctx context.Context, id int64, historyID string) error
	UpdateWatch(ctx context.Context, id int64, historyID string, expiration time.Time) error
	ClearWatch(ctx context.Context, id int64) error
}

// =============================================================================
// Category Repository (PostgreSQL)
// =============================================================================

// CategoryRepository defines the outbound port for category persistence.
type CategoryRepository interface {
	Create(ctx context.Context, category *domain.Category) error
	GetByID(ctx context.Context, userID uuid.UUID, id int64) (*domain.Category, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Category, error)
	Update(ctx context.Context, category *domain.Category) error
	// Delete removes the category and clears it from any emails that
	// reference it.
	Delete(ctx context.Context, userID uuid.UUID, id int64) error
}

// =============================================================================
// Email Repository (PostgreSQL - metadata only)
// =============================================================================

// EmailListQuery represents list filter options.
type EmailListQuery struct {
	AccountID     *int64
	CategoryID    *int64
	Uncategorized bool
	IsRead        *bool
	Search        string
	Limit         int
	Offset        int
}

// EmailRepository defines the outbound port for email metadata persistence.
// Bodies live in EmailBodyRepository (MongoDB).
type EmailRepository interface {
	// Insert stores a new email. The (account_id, message_id) unique
	// constraint is the dedup authority: a duplicate insert reports
	// inserted=false with a nil error.
	Insert(ctx context.Context, email *domain.Email) (inserted bool, err error)

	GetByID(ctx context.Context, userID uuid.UUID, id int64) (*domain.Email, error)
	List(ctx context.Context, userID uuid.UUID, q *EmailListQuery) ([]*domain.Email, int, error)
	Delete(ctx context.Context, userID uuid.UUID, id int64) error

	// ExistingMessageIDs reports which of the given provider message IDs
	// are already stored for the account.
	ExistingMessageIDs(ctx context.Context, accountID int64, messageIDs []string) (map[string]struct{}, error)

	// MaxReceivedAt returns the newest received_at for the account, or
	// nil when no emails are stored.
	MaxReceivedAt(ctx context.Context, accountID int64) (*time.Time, error)

	UpdateCategory(ctx context.Context, id int64, categoryID *int64, summary *string) error
	UpdateReadStatus(ctx context.Context, userID uuid.UUID, id int64, isRead bool) error

	// ListForClassification returns stored emails for a recategorization
	// pass. onlyUncategorized narrows to emails without a category.
	ListForClassification(ctx context.Context, accountID int64, onlyUncategorized bool) ([]*domain.Email, error)

	DeleteByAccountID(ctx context.Context, accountID int64) error
}

// =============================================================================
// Settings Repository (PostgreSQL)
// =============================================================================

// SettingsRepository defines the outbound port for per-user settings.
type SettingsRepository interface {
	// Get returns the user's settings, falling back to defaults when no
	// row exists.
	Get(ctx context.Context, userID uuid.UUID) (*domain.UserSettings, error)
	Upsert(ctx context.Context, settings *domain.UserSettings) error
}
