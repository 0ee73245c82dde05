package http

import (
	"github.com/gofiber/fiber/v2"

	"inbox_server/core/port/in"
	"inbox_server/pkg/apperr"
)

// CategoryHandler serves the category CRUD endpoints.
type CategoryHandler struct {
	categoryService in.CategoryService
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(categoryService in.CategoryService) *CategoryHandler {
	return &CategoryHandler{categoryService: categoryService}
}

// Register registers category routes on the authed router.
func (h *CategoryHandler) Register(router fiber.Router) {
	categories := router.Group("/categories")
	categories.Get("/", h.ListCategories)
	categories.Post("/", h.CreateCategory)
	categories.Patch("/:id", h.UpdateCategory)
	categories.Delete("/:id", h.DeleteCategory)
}

func (h *CategoryHandler) ListCategories(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	categories, err := h.categoryService.ListCategories(c.Context(), userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, categories)
}

func (h *CategoryHandler) CreateCategory(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	var req in.CreateCategoryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	category, err := h.categoryService.CreateCategory(c.Context(), userID, &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(APIResponse{
		Success:   true,
		Data:      category,
		Timestamp: timestamp(),
	})
}

func (h *CategoryHandler) UpdateCategory(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	categoryID, err := parseID(c.Params("id"))
	if err != nil {
		return apperr.BadRequest("invalid category id")
	}

	var req in.UpdateCategoryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	category, err := h.categoryService.UpdateCategory(c.Context(), userID, categoryID, &req)
	if err != nil {
		return err
	}
	return SuccessResponse(c, category)
}

func (h *CategoryHandler) DeleteCategory(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	categoryID, err := parseID(c.Params("id"))
	if err != nil {
		return apperr.BadRequest("invalid category id")
	}

	if err := h.categoryService.DeleteCategory(c.Context(), userID, categoryID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
