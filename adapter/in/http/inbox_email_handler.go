package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"inbox_server/core/port/in"
	"inbox_server/pkg/apperr"
)

// EmailHandler serves the email listing, sync and mutation endpoints.
type EmailHandler struct {
	emailService in.EmailService
	syncService  in.SyncService
}

// NewEmailHandler creates a new EmailHandler.
func NewEmailHandler(emailService in.EmailService, syncService in.SyncService) *EmailHandler {
	return &EmailHandler{
		emailService: emailService,
		syncService:  syncService,
	}
}

// Register registers email routes on the authed router.
func (h *EmailHandler) Register(router fiber.Router) {
	emails := router.Group("/emails")
	emails.Post("/sync", h.Sync)
	emails.Post("/recategorize", h.Recategorize)
	emails.Get("/", h.ListEmails)
	emails.Get("/:id", h.GetEmail)
	emails.Patch("/:id", h.UpdateEmail)
	emails.Delete("/:id", h.DeleteEmail)
}

type syncRequestBody struct {
	AccountID  *int64 `json:"account_id"`
	MaxResults int64  `json:"max_results"`
	OlderThan  string `json:"older_than"` // RFC3339 or YYYY-MM-DD
}

// Sync triggers a manual import for one or all connected accounts.
func (h *EmailHandler) Sync(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	var body syncRequestBody
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return apperr.BadRequest("invalid request body")
		}
	}

	req := &in.SyncRequest{
		AccountID:  body.AccountID,
		MaxResults: body.MaxResults,
	}
	if body.OlderThan != "" {
		olderThan, err := parseDate(body.OlderThan)
		if err != nil {
			return apperr.ValidationFailed("older_than must be RFC3339 or YYYY-MM-DD")
		}
		req.OlderThan = &olderThan
	}

	summary, err := h.syncService.Sync(c.Context(), userID, req)
	if err != nil {
		return err
	}
	return SuccessResponse(c, summary)
}

// Recategorize reruns classification over stored emails without touching
// the provider.
func (h *EmailHandler) Recategorize(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	var req in.RecategorizeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperr.BadRequest("invalid request body")
		}
	}

	summary, err := h.syncService.Recategorize(c.Context(), userID, &req)
	if err != nil {
		return err
	}
	return SuccessResponse(c, summary)
}

// ListEmails returns a filtered page of the user's emails.
func (h *EmailHandler) ListEmails(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	page := GetPaginationParams(c, 50)
	q := &in.ListEmailsQuery{
		AccountID:     QueryInt64(c, "account_id"),
		CategoryID:    QueryInt64(c, "category_id"),
		Uncategorized: c.Query("category") == "uncategorized",
		IsRead:        QueryBool(c, "is_read"),
		Search:        c.Query("search"),
		Limit:         page.Limit,
		Offset:        page.Offset,
	}

	emails, total, err := h.emailService.ListEmails(c.Context(), userID, q)
	if err != nil {
		return err
	}
	return SuccessResponse(c, NewListResponse(emails, total, page.Offset, page.Limit))
}

// GetEmail returns one email with its body attached.
func (h *EmailHandler) GetEmail(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	emailID, err := parseID(c.Params("id"))
	if err != nil {
		return apperr.BadRequest("invalid email id")
	}

	email, err := h.emailService.GetEmail(c.Context(), userID, emailID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, email)
}

// UpdateEmail applies a category override or read-state change.
func (h *EmailHandler) UpdateEmail(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	emailID, err := parseID(c.Params("id"))
	if err != nil {
		return apperr.BadRequest("invalid email id")
	}

	var req in.UpdateEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	email, err := h.emailService.UpdateEmail(c.Context(), userID, emailID, &req)
	if err != nil {
		return err
	}
	return SuccessResponse(c, email)
}

// DeleteEmail trashes the message at the provider and removes the stored row.
func (h *EmailHandler) DeleteEmail(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	emailID, err := parseID(c.Params("id"))
	if err != nil {
		return apperr.BadRequest("invalid email id")
	}

	if err := h.emailService.DeleteEmail(c.Context(), userID, emailID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// parseDate accepts RFC3339 timestamps and bare dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
