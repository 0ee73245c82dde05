// Package account manages connected accounts, their push subscriptions and
// per-user sync settings.
package account

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"
)

// TokenSource resolves a usable OAuth token for an account. Satisfied by
// auth.OAuthService.
type TokenSource interface {
	Token(ctx context.Context, account *domain.Account) (*oauth2.Token, error)
}

type Service struct {
	accountRepo out.AccountRepository
	emailRepo   out.EmailRepository
	bodyRepo    out.EmailBodyRepository
	provider    out.MailProviderPort
	tokens      TokenSource
}

func NewService(
	accountRepo out.AccountRepository,
	emailRepo out.EmailRepository,
	bodyRepo out.EmailBodyRepository,
	provider out.MailProviderPort,
	tokens TokenSource,
) *Service {
	return &Service{
		accountRepo: accountRepo,
		emailRepo:   emailRepo,
		bodyRepo:    bodyRepo,
		provider:    provider,
		tokens:      tokens,
	}
}

var _ in.AccountService = (*Service)(nil)

func (s *Service) ListAccounts(ctx context.Context, userID uuid.UUID) ([]*domain.Account, error) {
	return s.accountRepo.ListByUser(ctx, userID)
}

// Disconnect removes an account with its stored mail and bodies. The account
// matching the user's login email stays protected while it is the only one.
func (s *Service) Disconnect(ctx context.Context, userID uuid.UUID, userEmail string, accountID int64) error {
	account, err := s.accountRepo.GetByUserAndID(ctx, userID, accountID)
	if err != nil {
		return err
	}

	if account.Email == userEmail {
		accounts, err := s.accountRepo.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(accounts) <= 1 {
			return apperr.Forbidden("cannot disconnect the primary account while it is the only connected account")
		}
	}

	// Tear down the push subscription first so notifications stop landing
	// for a mailbox we no longer track.
	if s.provider != nil && account.WatchActive(timeNow()) {
		if token, err := s.tokens.Token(ctx, account); err == nil {
			if err := s.provider.StopWatch(ctx, token); err != nil {
				logger.Warn("[AccountService.Disconnect] stop watch for %d failed: %v", accountID, err)
			}
		}
	}

	if err := s.emailRepo.DeleteByAccountID(ctx, accountID); err != nil {
		return err
	}
	if s.bodyRepo != nil {
		if _, err := s.bodyRepo.DeleteByAccountID(ctx, accountID); err != nil {
			logger.Warn("[AccountService.Disconnect] body cleanup for %d failed: %v", accountID, err)
		}
	}
	if err := s.accountRepo.Delete(ctx, accountID); err != nil {
		return err
	}
	logger.Info("[AccountService.Disconnect] account %d (%s) removed", accountID, account.Email)
	return nil
}
