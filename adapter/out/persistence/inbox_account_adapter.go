// Package persistence provides PostgreSQL adapters for the outbound
// repository ports.
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

// AccountAdapter implements out.AccountRepository using PostgreSQL.
type AccountAdapter struct {
	db *sqlx.DB
}

// NewAccountAdapter creates a new AccountAdapter.
func NewAccountAdapter(db *sqlx.DB) *AccountAdapter {
	return &AccountAdapter{db: db}
}

var _ out.AccountRepository = (*AccountAdapter)(nil)

type accountRow struct {
	ID              int64      `db:"id"`
	UserID          uuid.UUID  `db:"user_id"`
	Email           string     `db:"email_address"`
	AccessToken     string     `db:"access_token"`
	RefreshToken    string     `db:"refresh_token"`
	TokenExpiry     time.Time  `db:"token_expiry"`
	LastSyncedAt    *time.Time `db:"last_synced_at"`
	LastHistoryID   *string    `db:"last_history_id"`
	WatchExpiration *time.Time `db:"watch_expiration"`
	CreatedAt       time.Time  `db:"created_at"`
}

func (r *accountRow) toDomain() *domain.Account {
	return &domain.Account{
		ID:              r.ID,
		UserID:          r.UserID,
		Email:           r.Email,
		AccessToken:     r.AccessToken,
		RefreshToken:    r.RefreshToken,
		TokenExpiry:     r.TokenExpiry,
		LastSyncedAt:    r.LastSyncedAt,
		LastHistoryID:   r.LastHistoryID,
		WatchExpiration: r.WatchExpiration,
		CreatedAt:       r.CreatedAt,
	}
}

const accountColumns = `
	id, user_id, email_address, access_token, refresh_token, token_expiry,
	last_synced_at, last_history_id, watch_expiration, created_at`

// Create inserts a new account and fills in its generated ID.
func (a *AccountAdapter) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (user_id, email_address, access_token, refresh_token,
		                      token_expiry, last_history_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	now := time.Now()
	err := a.db.QueryRowContext(ctx, query,
		account.UserID,
		account.Email,
		account.AccessToken,
		account.RefreshToken,
		account.TokenExpiry,
		account.LastHistoryID,
		now,
	).Scan(&account.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.AlreadyExists("account")
		}
		return apperr.DatabaseError("create account", err)
	}
	account.CreatedAt = now
	return nil
}

func (a *AccountAdapter) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	var row accountRow
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if isNoRows(err) {
			return nil, apperr.NotFound("account")
		}
		return nil, apperr.DatabaseError("get account", err)
	}
	return row.toDomain(), nil
}

func (a *AccountAdapter) GetByUserAndID(ctx context.Context, userID uuid.UUID, id int64) (*domain.Account, error) {
	var row accountRow
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 AND user_id = $2`

	if err := a.db.GetContext(ctx, &row, query, id, userID); err != nil {
		if isNoRows(err) {
			return nil, apperr.NotFound("account")
		}
		return nil, apperr.DatabaseError("get account", err)
	}
	return row.toDomain(), nil
}

func (a *AccountAdapter) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Account, error) {
	var rows []accountRow
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 ORDER BY created_at ASC`

	if err := a.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, apperr.DatabaseError("list accounts", err)
	}

	accounts := make([]*domain.Account, 0, len(rows))
	for i := range rows {
		accounts = append(accounts, rows[i].toDomain())
	}
	return accounts, nil
}

func (a *AccountAdapter) GetByEmailAddress(ctx context.Context, email string) (*domain.Account, error) {
	var row accountRow
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email_address = $1 LIMIT 1`

	if err := a.db.GetContext(ctx, &row, query, email); err != nil {
		if isNoRows(err) {
			return nil, apperr.NotFound("account")
		}
		return nil, apperr.DatabaseError("get account by email", err)
	}
	return row.toDomain(), nil
}

func (a *AccountAdapter) ListExpiringWatch(ctx context.Context, before time.Time) ([]*domain.Account, error) {
	var rows []accountRow
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE watch_expiration IS NOT NULL AND watch_expiration < $1
		ORDER BY watch_expiration ASC`

	if err := a.db.SelectContext(ctx, &rows, query, before); err != nil {
		return nil, apperr.DatabaseError("list expiring watches", err)
	}

	accounts := make([]*domain.Account, 0, len(rows))
	for i := range rows {
		accounts = append(accounts, rows[i].toDomain())
	}
	return accounts, nil
}

func (a *AccountAdapter) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM accounts WHERE id = $1`
	if _, err := a.db.ExecContext(ctx, query, id); err != nil {
		return apperr.DatabaseError("delete account", err)
	}
	return nil
}

func (a *AccountAdapter) UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiry time.Time) error {
	query := `
		UPDATE accounts
		SET access_token = $1, refresh_token = $2, token_expiry = $3
		WHERE id = $4`

	if _, err := a.db.ExecContext(ctx, query, accessToken, refreshToken, expiry, id); err != nil {
		return apperr.DatabaseError("update tokens", err)
	}
	return nil
}

func (a *AccountAdapter) UpdateLastSyncedAt(ctx context.Context, id int64, syncedAt time.Time) error {
	query := `UPDATE accounts SET last_synced_at = $1 WHERE id = $2`
	if _, err := a.db.ExecContext(ctx, query, syncedAt, id); err != nil {
		return apperr.DatabaseError("update last synced at", err)
	}
	return nil
}

func (a *AccountAdapter) UpdateHistoryID(ctx context.Context, id int64, historyID string) error {
	query := `UPDATE accounts SET last_history_id = $1 WHERE id = $2`
	if _, err := a.db.ExecContext(ctx, query, historyID, id); err != nil {
		return apperr.DatabaseError("update history cursor", err)
	}
	return nil
}

func (a *AccountAdapter) UpdateWatch(ctx context.Context, id int64, historyID string, expiration time.Time) error {
	query := `
		UPDATE accounts
		SET last_history_id = $1, watch_expiration = $2
		WHERE id = $3`

	if _, err := a.db.ExecContext(ctx, query, historyID, expiration, id); err != nil {
		return apperr.DatabaseError("update watch", err)
	}
	return nil
}

func (a *AccountAdapter) ClearWatch(ctx context.Context, id int64) error {
	query := `UPDATE accounts SET watch_expiration = NULL WHERE id = $1`
	if _, err := a.db.ExecContext(ctx, query, id); err != nil {
		return apperr.DatabaseError("clear watch", err)
	}
	return nil
}
