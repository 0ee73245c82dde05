package category

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/pkg/apperr"
)

var testUserID = uuid.MustParse("7e1f4c3b-2d5a-4b6c-8f9e-0a1b2c3d4e5f")

type memCategoryRepo struct {
	nextID     int64
	categories map[int64]*domain.Category
	deleted    []int64
}

func newMemCategoryRepo(names ...string) *memCategoryRepo {
	r := &memCategoryRepo{categories: map[int64]*domain.Category{}}
	for _, name := range names {
		r.nextID++
		r.categories[r.nextID] = &domain.Category{ID: r.nextID, UserID: testUserID, Name: name}
	}
	return r
}

func (r *memCategoryRepo) Create(_ context.Context, c *domain.Category) error {
	r.nextID++
	c.ID = r.nextID
	r.categories[c.ID] = c
	return nil
}

func (r *memCategoryRepo) GetByID(_ context.Context, userID uuid.UUID, id int64) (*domain.Category, error) {
	c, ok := r.categories[id]
	if !ok || c.UserID != userID {
		return nil, apperr.NotFound("category")
	}
	return c, nil
}

func (r *memCategoryRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.Category, error) {
	var result []*domain.Category
	for i := int64(1); i <= r.nextID; i++ {
		if c, ok := r.categories[i]; ok && c.UserID == userID {
			result = append(result, c)
		}
	}
	return result, nil
}

func (r *memCategoryRepo) Update(_ context.Context, c *domain.Category) error {
	r.categories[c.ID] = c
	return nil
}

func (r *memCategoryRepo) Delete(_ context.Context, _ uuid.UUID, id int64) error {
	delete(r.categories, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func TestCreateCategory(t *testing.T) {
	svc := NewService(newMemCategoryRepo())

	created, err := svc.CreateCategory(context.Background(), testUserID, &in.CreateCategoryRequest{
		Name:        "  Work  ",
		Description: "job related",
	})
	if err != nil {
		t.Fatalf("CreateCategory() error: %v", err)
	}
	if created.ID == 0 || created.Name != "Work" {
		t.Errorf("created = %+v, want trimmed name and assigned ID", created)
	}
}

func TestCreateCategoryRejectsDuplicateName(t *testing.T) {
	svc := NewService(newMemCategoryRepo("Work"))

	_, err := svc.CreateCategory(context.Background(), testUserID, &in.CreateCategoryRequest{Name: "work"})
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeAlreadyExists {
		t.Fatalf("expected already-exists for case-insensitive duplicate, got %v", err)
	}
}

func TestCreateCategoryRequiresName(t *testing.T) {
	svc := NewService(newMemCategoryRepo())

	_, err := svc.CreateCategory(context.Background(), testUserID, &in.CreateCategoryRequest{Name: "   "})
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeMissingField {
		t.Fatalf("expected missing-field, got %v", err)
	}
}

func TestUpdateCategoryRenameKeepsOwnName(t *testing.T) {
	repo := newMemCategoryRepo("Work")
	svc := NewService(repo)

	// Renaming to the same name (case change only) must not collide with
	// itself.
	name := "WORK"
	updated, err := svc.UpdateCategory(context.Background(), testUserID, 1, &in.UpdateCategoryRequest{Name: &name})
	if err != nil {
		t.Fatalf("UpdateCategory() error: %v", err)
	}
	if updated.Name != "WORK" {
		t.Errorf("name = %q, want WORK", updated.Name)
	}
}

func TestDeleteCategoryForeignOwnerRejected(t *testing.T) {
	repo := newMemCategoryRepo("Work")
	repo.categories[1].UserID = uuid.MustParse("99999999-9999-4999-8999-999999999999")
	svc := NewService(repo)

	err := svc.DeleteCategory(context.Background(), testUserID, 1)
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeNotFound {
		t.Fatalf("expected not-found for foreign category, got %v", err)
	}
	if len(repo.deleted) != 0 {
		t.Error("foreign category must not be deleted")
	}
}

func TestDeleteCategory(t *testing.T) {
	repo := newMemCategoryRepo("Work")
	svc := NewService(repo)

	if err := svc.DeleteCategory(context.Background(), testUserID, 1); err != nil {
		t.Fatalf("DeleteCategory() error: %v", err)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != 1 {
		t.Errorf("deleted = %v, want [1]", repo.deleted)
	}
}
