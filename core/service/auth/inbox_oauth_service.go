// Package auth owns the OAuth connect flow and access-token lifecycle for
// connected mail accounts. Tokens are encrypted at rest.
package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/crypto"
	"inbox_server/pkg/logger"
)

// refreshSkew refreshes tokens this long before their recorded expiry.
const refreshSkew = 5 * time.Minute

type OAuthService struct {
	accountRepo out.AccountRepository
	provider    out.MailProviderPort
}

func NewOAuthService(accountRepo out.AccountRepository, provider out.MailProviderPort) *OAuthService {
	return &OAuthService{
		accountRepo: accountRepo,
		provider:    provider,
	}
}

// GetAuthURL returns the provider consent URL for the connect flow, or ""
// when no provider is configured.
func (s *OAuthService) GetAuthURL(state string) string {
	if s.provider == nil {
		return ""
	}
	return s.provider.GetAuthURL(state)
}

// HandleCallback exchanges the authorization code, resolves the mailbox
// profile and creates (or re-links) the account for the user.
func (s *OAuthService) HandleCallback(ctx context.Context, userID uuid.UUID, code string) (*domain.Account, error) {
	if s.provider == nil {
		return nil, apperr.ConfigError("google oauth is not configured")
	}
	logger.Info("[OAuthService.HandleCallback] Starting for user %s", userID)

	token, err := s.provider.ExchangeToken(ctx, code)
	if err != nil {
		return nil, apperr.OAuthFailed("gmail", err)
	}

	profile, err := s.provider.GetProfile(ctx, token)
	if err != nil {
		return nil, apperr.OAuthFailed("gmail", err)
	}

	access, err := crypto.EncryptToken(token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := crypto.EncryptToken(token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt refresh token: %w", err)
	}

	// Reconnecting an already linked mailbox updates its tokens in place.
	existing, err := s.findUserAccount(ctx, userID, profile.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.accountRepo.UpdateTokens(ctx, existing.ID, access, refresh, token.Expiry); err != nil {
			return nil, err
		}
		logger.Info("[OAuthService.HandleCallback] Relinked account %d (%s)", existing.ID, profile.Email)
		return existing, nil
	}

	account := &domain.Account{
		UserID:       userID,
		Email:        profile.Email,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenExpiry:  token.Expiry,
		CreatedAt:    time.Now(),
	}
	if profile.HistoryID > 0 {
		historyID := strconv.FormatUint(profile.HistoryID, 10)
		account.LastHistoryID = &historyID
	}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, err
	}
	logger.Info("[OAuthService.HandleCallback] Connected account %d (%s)", account.ID, profile.Email)
	return account, nil
}

// Token returns a usable OAuth token for the account, refreshing and
// re-persisting it when close to expiry.
func (s *OAuthService) Token(ctx context.Context, account *domain.Account) (*oauth2.Token, error) {
	access, err := crypto.DecryptToken(account.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	refresh, err := crypto.DecryptToken(account.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt refresh token: %w", err)
	}

	token := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       account.TokenExpiry,
		TokenType:    "Bearer",
	}
	if time.Until(token.Expiry) > refreshSkew {
		return token, nil
	}

	if s.provider == nil {
		return nil, apperr.ConfigError("google oauth is not configured")
	}
	fresh, err := s.provider.RefreshToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if fresh.AccessToken != token.AccessToken {
		encAccess, err := crypto.EncryptToken(fresh.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("encrypt refreshed token: %w", err)
		}
		encRefresh := account.RefreshToken
		if fresh.RefreshToken != "" && fresh.RefreshToken != refresh {
			if encRefresh, err = crypto.EncryptToken(fresh.RefreshToken); err != nil {
				return nil, fmt.Errorf("encrypt refreshed token: %w", err)
			}
		}
		if err := s.accountRepo.UpdateTokens(ctx, account.ID, encAccess, encRefresh, fresh.Expiry); err != nil {
			// Stale persisted expiry just forces another refresh next run.
			logger.Warn("[OAuthService.Token] failed to persist refreshed token for account %d: %v", account.ID, err)
		}
	}
	return fresh, nil
}

func (s *OAuthService) findUserAccount(ctx context.Context, userID uuid.UUID, email string) (*domain.Account, error) {
	accounts, err := s.accountRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, nil
}
