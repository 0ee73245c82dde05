package in

import (
	"context"

	"inbox_server/core/domain"

	"github.com/google/uuid"
)

// AuthService drives the Google OAuth connect flow for mail accounts.
type AuthService interface {
	// GetAuthURL returns the Google consent URL carrying the given state.
	GetAuthURL(state string) string

	// HandleCallback exchanges the authorization code, resolves the Google
	// profile and creates or updates the connected account for the user.
	HandleCallback(ctx context.Context, userID uuid.UUID, code string) (*domain.Account, error)
}
