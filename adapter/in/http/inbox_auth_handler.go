package http

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"inbox_server/core/port/in"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AuthHandler struct {
	authService in.AuthService
}

func NewAuthHandler(authService in.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(app fiber.Router) {
	auth := app.Group("/auth/google")
	auth.Get("/url", h.AuthURL)
	auth.Get("/callback", h.Callback)
}

// AuthURL returns the Google consent URL. The state carries the user ID so
// the callback can attribute the connected account without a session store.
func (h *AuthHandler) AuthURL(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("")
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return apperr.DatabaseError("generate state", err)
	}
	state := userID.String() + ":" + hex.EncodeToString(nonce)

	authURL := h.authService.GetAuthURL(state)
	if authURL == "" {
		return apperr.ConfigError("google oauth is not configured")
	}
	return SuccessResponse(c, fiber.Map{
		"auth_url": authURL,
		"state":    state,
	})
}

// Callback completes the OAuth flow. Google redirects here, so the user ID
// is recovered from the state instead of the JWT.
func (h *AuthHandler) Callback(c *fiber.Ctx) error {
	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("[Auth] OAuth callback returned error: %s", errParam)
		return apperr.BadRequest("oauth consent denied: " + errParam)
	}

	code := c.Query("code")
	if code == "" {
		return apperr.MissingField("code")
	}

	state := c.Query("state")
	idPart, _, ok := strings.Cut(state, ":")
	if !ok {
		return apperr.BadRequest("malformed state")
	}
	userID, err := uuid.Parse(idPart)
	if err != nil {
		return apperr.BadRequest("malformed state")
	}

	account, err := h.authService.HandleCallback(c.Context(), userID, code)
	if err != nil {
		return err
	}

	logger.Info("[Auth] Connected account %s for user %s", account.Email, userID)
	return SuccessResponse(c, account)
}
