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

// CategoryAdapter implements out.CategoryRepository using PostgreSQL.
type CategoryAdapter struct {
	db *sqlx.DB
}

// NewCategoryAdapter creates a new CategoryAdapter.
func NewCategoryAdapter(db *sqlx.DB) *CategoryAdapter {
	return &CategoryAdapter{db: db}
}

var _ out.CategoryRepository = (*CategoryAdapter)(nil)

type categoryRow struct {
	ID          int64     `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r *categoryRow) toDomain() *domain.Category {
	return &domain.Category{
		ID:          r.ID,
		UserID:      r.UserID,
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
	}
}

func (a *CategoryAdapter) Create(ctx context.Context, category *domain.Category) error {
	query := `
		INSERT INTO categories (user_id, name, description, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	now := time.Now()
	err := a.db.QueryRowContext(ctx, query,
		category.UserID,
		category.Name,
		category.Description,
		now,
	).Scan(&category.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.AlreadyExists("category")
		}
		return apperr.DatabaseError("create category", err)
	}
	category.CreatedAt = now
	return nil
}

func (a *CategoryAdapter) GetByID(ctx context.Context, userID uuid.UUID, id int64) (*domain.Category, error) {
	var row categoryRow
	query := `
		SELECT id, user_id, name, description, created_at
		FROM categories
		WHERE id = $1 AND user_id = $2`

	if err := a.db.GetContext(ctx, &row, query, id, userID); err != nil {
		if isNoRows(err) {
			return nil, apperr.NotFound("category")
		}
		return nil, apperr.DatabaseError("get category", err)
	}
	return row.toDomain(), nil
}

func (a *CategoryAdapter) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Category, error) {
	var rows []categoryRow
	query := `
		SELECT id, user_id, name, description, created_at
		FROM categories
		WHERE user_id = $1
		ORDER BY name ASC`

	if err := a.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, apperr.DatabaseError("list categories", err)
	}

	categories := make([]*domain.Category, 0, len(rows))
	for i := range rows {
		categories = append(categories, rows[i].toDomain())
	}
	return categories, nil
}

func (a *CategoryAdapter) Update(ctx context.Context, category *domain.Category) error {
	query := `
		UPDATE categories
		SET name = $1, description = $2
		WHERE id = $3 AND user_id = $4`

	result, err := a.db.ExecContext(ctx, query,
		category.Name,
		category.Description,
		category.ID,
		category.UserID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.AlreadyExists("category")
		}
		return apperr.DatabaseError("update category", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("category")
	}
	return nil
}

// Delete removes the category and clears it from referencing emails in a
// single transaction, so no email is left pointing at a dead category.
func (a *CategoryAdapter) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin delete category", err)
	}
	defer tx.Rollback()

	clearQuery := `
		UPDATE emails
		SET category_id = NULL
		WHERE category_id = $1`
	if _, err := tx.ExecContext(ctx, clearQuery, id); err != nil {
		return apperr.DatabaseError("clear category references", err)
	}

	deleteQuery := `DELETE FROM categories WHERE id = $1 AND user_id = $2`
	result, err := tx.ExecContext(ctx, deleteQuery, id, userID)
	if err != nil {
		return apperr.DatabaseError("delete category", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("category")
	}

	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit delete category", err)
	}
	return nil
}
