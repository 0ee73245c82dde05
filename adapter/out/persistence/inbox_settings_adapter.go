package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
)

// SettingsAdapter implements out.SettingsRepository using PostgreSQL.
type SettingsAdapter struct {
	db *sqlx.DB
}

// NewSettingsAdapter creates a new SettingsAdapter.
func NewSettingsAdapter(db *sqlx.DB) *SettingsAdapter {
	return &SettingsAdapter{db: db}
}

var _ out.SettingsRepository = (*SettingsAdapter)(nil)

type settingsRow struct {
	UserID     uuid.UUID `db:"user_id"`
	SyncOnPush bool      `db:"sync_on_push"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Get returns the user's settings. A user with no stored row gets the
// defaults.
func (a *SettingsAdapter) Get(ctx context.Context, userID uuid.UUID) (*domain.UserSettings, error) {
	var row settingsRow
	query := `SELECT user_id, sync_on_push, updated_at FROM user_settings WHERE user_id = $1`

	if err := a.db.GetContext(ctx, &row, query, userID); err != nil {
		if isNoRows(err) {
			return &domain.UserSettings{UserID: userID}, nil
		}
		return nil, apperr.DatabaseError("get settings", err)
	}

	return &domain.UserSettings{
		UserID:     row.UserID,
		SyncOnPush: row.SyncOnPush,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

func (a *SettingsAdapter) Upsert(ctx context.Context, settings *domain.UserSettings) error {
	query := `
		INSERT INTO user_settings (user_id, sync_on_push, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET sync_on_push = EXCLUDED.sync_on_push, updated_at = EXCLUDED.updated_at`

	now := time.Now()
	if _, err := a.db.ExecContext(ctx, query, settings.UserID, settings.SyncOnPush, now); err != nil {
		return apperr.DatabaseError("upsert settings", err)
	}
	settings.UpdatedAt = now
	return nil
}
