// Package category implements per-user category management.
package category

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"
)

type Service struct {
	categoryRepo out.CategoryRepository
}

func NewService(categoryRepo out.CategoryRepository) *Service {
	return &Service{categoryRepo: categoryRepo}
}

var _ in.CategoryService = (*Service)(nil)

func (s *Service) CreateCategory(ctx context.Context, userID uuid.UUID, req *in.CreateCategoryRequest) (*domain.Category, error) {
	if req == nil || strings.TrimSpace(req.Name) == "" {
		return nil, apperr.MissingField("name")
	}
	name := strings.TrimSpace(req.Name)

	if err := s.checkNameFree(ctx, userID, name, 0); err != nil {
		return nil, err
	}

	category := &domain.Category{
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   time.Now(),
	}
	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *Service) ListCategories(ctx context.Context, userID uuid.UUID) ([]*domain.Category, error) {
	return s.categoryRepo.ListByUser(ctx, userID)
}

func (s *Service) UpdateCategory(ctx context.Context, userID uuid.UUID, id int64, req *in.UpdateCategoryRequest) (*domain.Category, error) {
	if req == nil || (req.Name == nil && req.Description == nil) {
		return nil, apperr.BadRequest("no fields to update")
	}

	category, err := s.categoryRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperr.MissingField("name")
		}
		if err := s.checkNameFree(ctx, userID, name, id); err != nil {
			return nil, err
		}
		category.Name = name
	}
	if req.Description != nil {
		category.Description = strings.TrimSpace(*req.Description)
	}

	if err := s.categoryRepo.Update(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

// DeleteCategory removes the category; emails referencing it fall back to
// uncategorized (the repository clears the references atomically).
func (s *Service) DeleteCategory(ctx context.Context, userID uuid.UUID, id int64) error {
	if _, err := s.categoryRepo.GetByID(ctx, userID, id); err != nil {
		return err
	}
	if err := s.categoryRepo.Delete(ctx, userID, id); err != nil {
		return err
	}
	logger.Info("[CategoryService.DeleteCategory] category %d removed for user %s", id, userID)
	return nil
}

// checkNameFree enforces per-user name uniqueness, ignoring the category
// being renamed.
func (s *Service) checkNameFree(ctx context.Context, userID uuid.UUID, name string, selfID int64) error {
	categories, err := s.categoryRepo.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, c := range categories {
		if c.ID != selfID && strings.EqualFold(c.Name, name) {
			return apperr.AlreadyExists("category")
		}
	}
	return nil
}
