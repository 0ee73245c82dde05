package in

import (
	"context"

	"github.com/google/uuid"

	"inbox_server/core/domain"
)

// CreateCategoryRequest creates a user category.
type CreateCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateCategoryRequest renames or redescribes a category.
type UpdateCategoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type CategoryService interface {
	CreateCategory(ctx context.Context, userID uuid.UUID, req *CreateCategoryRequest) (*domain.Category, error)
	ListCategories(ctx context.Context, userID uuid.UUID) ([]*domain.Category, error)
	UpdateCategory(ctx context.Context, userID uuid.UUID, id int64, req *UpdateCategoryRequest) (*domain.Category, error)
	DeleteCategory(ctx context.Context, userID uuid.UUID, id int64) error
}
