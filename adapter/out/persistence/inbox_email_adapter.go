package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
)

// EmailAdapter implements out.EmailRepository using PostgreSQL. Only
// metadata lives here; bodies are stored separately.
type EmailAdapter struct {
	db *sqlx.DB
}

// NewEmailAdapter creates a new EmailAdapter.
func NewEmailAdapter(db *sqlx.DB) *EmailAdapter {
	return &EmailAdapter{db: db}
}

var _ out.EmailRepository = (*EmailAdapter)(nil)

type emailRow struct {
	ID          int64          `db:"id"`
	AccountID   int64          `db:"account_id"`
	MessageID   string         `db:"message_id"`
	ThreadID    string         `db:"thread_id"`
	Subject     string         `db:"subject"`
	SenderName  string         `db:"sender_name"`
	SenderEmail string         `db:"sender_email"`
	ReceivedAt  time.Time      `db:"received_at"`
	CategoryID  *int64         `db:"category_id"`
	Summary     *string        `db:"summary"`
	Labels      pq.StringArray `db:"label_ids"`
	IsRead      bool           `db:"is_read"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r *emailRow) toDomain() *domain.Email {
	return &domain.Email{
		ID:          r.ID,
		AccountID:   r.AccountID,
		MessageID:   r.MessageID,
		ThreadID:    r.ThreadID,
		Subject:     r.Subject,
		SenderName:  r.SenderName,
		SenderEmail: r.SenderEmail,
		ReceivedAt:  r.ReceivedAt,
		CategoryID:  r.CategoryID,
		Summary:     r.Summary,
		Labels:      []string(r.Labels),
		IsRead:      r.IsRead,
		CreatedAt:   r.CreatedAt,
	}
}

const emailColumns = `
	e.id, e.account_id, e.message_id, e.thread_id, e.subject,
	e.sender_name, e.sender_email, e.received_at, e.category_id,
	e.summary, e.label_ids, e.is_read, e.created_at`

// Insert stores a new email. The unique index on (account_id, message_id)
// is the dedup authority: a conflicting row reports inserted=false and
// leaves the stored email untouched.
func (a *EmailAdapter) Insert(ctx context.Context, email *domain.Email) (bool, error) {
	query := `
		INSERT INTO emails (account_id, message_id, thread_id, subject,
		                    sender_name, sender_email, received_at,
		                    category_id, summary, label_ids, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (account_id, message_id) DO NOTHING
		RETURNING id`

	now := time.Now()
	err := a.db.QueryRowContext(ctx, query,
		email.AccountID,
		email.MessageID,
		email.ThreadID,
		email.Subject,
		email.SenderName,
		email.SenderEmail,
		email.ReceivedAt,
		email.CategoryID,
		email.Summary,
		pq.Array(email.Labels),
		email.IsRead,
		now,
	).Scan(&email.ID)
	if err != nil {
		if isNoRows(err) {
			// Conflict: the message is already stored.
			return false, nil
		}
		return false, apperr.DatabaseError("insert email", err)
	}
	email.CreatedAt = now
	return true, nil
}

func (a *EmailAdapter) GetByID(ctx context.Context, userID uuid.UUID, id int64) (*domain.Email, error) {
	var row emailRow
	query := `
		SELECT ` + emailColumns + `
		FROM emails e
		JOIN accounts a ON a.id = e.account_id
		WHERE e.id = $1 AND a.user_id = $2`

	if err := a.db.GetContext(ctx, &row, query, id, userID); err != nil {
		if isNoRows(err) {
			return nil, apperr.NotFound("email")
		}
		return nil, apperr.DatabaseError("get email", err)
	}
	return row.toDomain(), nil
}

// List returns a filtered page of the user's emails, newest first, along
// with the total count before pagination.
func (a *EmailAdapter) List(ctx context.Context, userID uuid.UUID, q *out.EmailListQuery) ([]*domain.Email, int, error) {
	where := []string{"a.user_id = $1"}
	args := []interface{}{userID}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.AccountID != nil {
		where = append(where, "e.account_id = "+arg(*q.AccountID))
	}
	if q.CategoryID != nil {
		where = append(where, "e.category_id = "+arg(*q.CategoryID))
	} else if q.Uncategorized {
		where = append(where, "e.category_id IS NULL")
	}
	if q.IsRead != nil {
		where = append(where, "e.is_read = "+arg(*q.IsRead))
	}
	if q.Search != "" {
		pattern := arg("%" + q.Search + "%")
		where = append(where, fmt.Sprintf(
			"(e.subject ILIKE %s OR e.sender_name ILIKE %s OR e.sender_email ILIKE %s)",
			pattern, pattern, pattern))
	}

	whereClause := strings.Join(where, " AND ")

	countQuery := `
		SELECT COUNT(*)
		FROM emails e
		JOIN accounts a ON a.id = e.account_id
		WHERE ` + whereClause

	var total int
	if err := a.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, apperr.DatabaseError("count emails", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	listQuery := `
		SELECT ` + emailColumns + `
		FROM emails e
		JOIN accounts a ON a.id = e.account_id
		WHERE ` + whereClause + `
		ORDER BY e.received_at DESC, e.id DESC
		LIMIT ` + arg(limit) + ` OFFSET ` + arg(q.Offset)

	var rows []emailRow
	if err := a.db.SelectContext(ctx, &rows, listQuery, args...); err != nil {
		return nil, 0, apperr.DatabaseError("list emails", err)
	}

	emails := make([]*domain.Email, 0, len(rows))
	for i := range rows {
		emails = append(emails, rows[i].toDomain())
	}
	return emails, total, nil
}

func (a *EmailAdapter) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	query := `
		DELETE FROM emails e
		USING accounts a
		WHERE e.id = $1 AND a.id = e.account_id AND a.user_id = $2`

	result, err := a.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return apperr.DatabaseError("delete email", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("email")
	}
	return nil
}

func (a *EmailAdapter) ExistingMessageIDs(ctx context.Context, accountID int64, messageIDs []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(messageIDs) == 0 {
		return existing, nil
	}

	query, args, err := sqlx.In(
		`SELECT message_id FROM emails WHERE account_id = ? AND message_id IN (?)`,
		accountID, messageIDs)
	if err != nil {
		return nil, apperr.DatabaseError("build existing message query", err)
	}

	var found []string
	if err := a.db.SelectContext(ctx, &found, a.db.Rebind(query), args...); err != nil {
		return nil, apperr.DatabaseError("check existing messages", err)
	}

	for _, id := range found {
		existing[id] = struct{}{}
	}
	return existing, nil
}

func (a *EmailAdapter) MaxReceivedAt(ctx context.Context, accountID int64) (*time.Time, error) {
	var latest *time.Time
	query := `SELECT MAX(received_at) FROM emails WHERE account_id = $1`

	if err := a.db.GetContext(ctx, &latest, query, accountID); err != nil {
		return nil, apperr.DatabaseError("get latest received at", err)
	}
	return latest, nil
}

func (a *EmailAdapter) UpdateCategory(ctx context.Context, id int64, categoryID *int64, summary *string) error {
	query := `UPDATE emails SET category_id = $1, summary = $2 WHERE id = $3`
	if _, err := a.db.ExecContext(ctx, query, categoryID, summary, id); err != nil {
		return apperr.DatabaseError("update email category", err)
	}
	return nil
}

func (a *EmailAdapter) UpdateReadStatus(ctx context.Context, userID uuid.UUID, id int64, isRead bool) error {
	query := `
		UPDATE emails e
		SET is_read = $1
		FROM accounts a
		WHERE e.id = $2 AND a.id = e.account_id AND a.user_id = $3`

	result, err := a.db.ExecContext(ctx, query, isRead, id, userID)
	if err != nil {
		return apperr.DatabaseError("update read status", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("email")
	}
	return nil
}

func (a *EmailAdapter) ListForClassification(ctx context.Context, accountID int64, onlyUncategorized bool) ([]*domain.Email, error) {
	query := `
		SELECT ` + emailColumns + `
		FROM emails e
		WHERE e.account_id = $1`
	if onlyUncategorized {
		query += ` AND e.category_id IS NULL`
	}
	query += ` ORDER BY e.received_at DESC`

	var rows []emailRow
	if err := a.db.SelectContext(ctx, &rows, query, accountID); err != nil {
		return nil, apperr.DatabaseError("list emails for classification", err)
	}

	emails := make([]*domain.Email, 0, len(rows))
	for i := range rows {
		emails = append(emails, rows[i].toDomain())
	}
	return emails, nil
}

func (a *EmailAdapter) DeleteByAccountID(ctx context.Context, accountID int64) error {
	query := `DELETE FROM emails WHERE account_id = $1`
	if _, err := a.db.ExecContext(ctx, query, accountID); err != nil {
		return apperr.DatabaseError("delete emails for account", err)
	}
	return nil
}
