package http

import (
	"github.com/gofiber/fiber/v2"

	"inbox_server/core/port/in"
	"inbox_server/pkg/apperr"
)

// AccountHandler serves connected-account, watch and settings endpoints.
type AccountHandler struct {
	accountService  in.AccountService
	watchService    in.WatchService
	settingsService in.SettingsService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(
	accountService in.AccountService,
	watchService in.WatchService,
	settingsService in.SettingsService,
) *AccountHandler {
	return &AccountHandler{
		accountService:  accountService,
		watchService:    watchService,
		settingsService: settingsService,
	}
}

// Register registers account routes on the authed router.
func (h *AccountHandler) Register(router fiber.Router) {
	accounts := router.Group("/accounts")
	accounts.Get("/", h.ListAccounts)
	accounts.Delete("/:id", h.Disconnect)
	accounts.Get("/:id/watch", h.GetWatchStatus)
	accounts.Post("/:id/watch", h.EnableWatch)
	accounts.Delete("/:id/watch", h.DisableWatch)

	router.Get("/settings", h.GetSettings)
	router.Patch("/settings", h.UpdateSettings)
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	accounts, err := h.accountService.ListAccounts(c.Context(), userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, accounts)
}

// Disconnect removes an account and its stored mail. The primary account
// (the one matching the login email) cannot be removed while it is the only
// one connected.
func (h *AccountHandler) Disconnect(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	accountID, err := parseID(c.Params("id"))
	if err != nil {
		return apperr.BadRequest("invalid account id")
	}

	if err := h.accountService.Disconnect(c.Context(), userID, GetUserEmail(c), accountID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AccountHandler) GetWatchStatus(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	accountID, err := parseID(c.Params("id"))
	if err != nil {
		return apperr.BadRequest("invalid account id")
	}

	status, err := h.watchService.GetWatchStatus(c.Context(), userID, accountID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, status)
}

func (h *AccountHandler) EnableWatch(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	accountID, err := parseID(c.Params("id"))
	if err != nil {
		return apperr.BadRequest("invalid account id")
	}

	status, err := h.watchService.EnableWatch(c.Context(), userID, accountID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, status)
}

func (h *AccountHandler) DisableWatch(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	accountID, err := parseID(c.Params("id"))
	if err != nil {
		return apperr.BadRequest("invalid account id")
	}

	if err := h.watchService.DisableWatch(c.Context(), userID, accountID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AccountHandler) GetSettings(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	settings, err := h.settingsService.GetSettings(c.Context(), userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, settings)
}

func (h *AccountHandler) UpdateSettings(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	var req in.UpdateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	settings, err := h.settingsService.UpdateSettings(c.Context(), userID, &req)
	if err != nil {
		return err
	}
	return SuccessResponse(c, settings)
}
