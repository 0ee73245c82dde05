package mail

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"
)

// EmailService serves stored emails: listing, detail with body join,
// manual overrides and deletion.
type EmailService struct {
	accountRepo  out.AccountRepository
	categoryRepo out.CategoryRepository
	emailRepo    out.EmailRepository
	bodyRepo     out.EmailBodyRepository
	provider     out.MailProviderPort
	tokens       TokenSource
}

func NewEmailService(
	accountRepo out.AccountRepository,
	categoryRepo out.CategoryRepository,
	emailRepo out.EmailRepository,
	bodyRepo out.EmailBodyRepository,
	provider out.MailProviderPort,
	tokens TokenSource,
) *EmailService {
	return &EmailService{
		accountRepo:  accountRepo,
		categoryRepo: categoryRepo,
		emailRepo:    emailRepo,
		bodyRepo:     bodyRepo,
		provider:     provider,
		tokens:       tokens,
	}
}

var _ in.EmailService = (*EmailService)(nil)

func (s *EmailService) GetEmail(ctx context.Context, userID uuid.UUID, emailID int64) (*domain.Email, error) {
	email, err := s.emailRepo.GetByID(ctx, userID, emailID)
	if err != nil {
		return nil, err
	}

	if s.bodyRepo == nil {
		return email, nil
	}
	body, err := s.bodyRepo.GetBody(ctx, emailID)
	if err != nil {
		// Metadata still renders without the body.
		logger.Warn("[EmailService.GetEmail] body lookup for %d failed: %v", emailID, err)
		return email, nil
	}
	if body != nil {
		email.BodyText = body.Text
		email.BodyHTML = body.HTML
	}
	return email, nil
}

func (s *EmailService) ListEmails(ctx context.Context, userID uuid.UUID, q *in.ListEmailsQuery) ([]*domain.Email, int, error) {
	if q == nil {
		q = &in.ListEmailsQuery{}
	}
	return s.emailRepo.List(ctx, userID, &out.EmailListQuery{
		AccountID:     q.AccountID,
		CategoryID:    q.CategoryID,
		Uncategorized: q.Uncategorized,
		IsRead:        q.IsRead,
		Search:        q.Search,
		Limit:         q.Limit,
		Offset:        q.Offset,
	})
}

func (s *EmailService) UpdateEmail(ctx context.Context, userID uuid.UUID, emailID int64, req *in.UpdateEmailRequest) (*domain.Email, error) {
	if req == nil {
		return nil, apperr.BadRequest("empty update")
	}

	email, err := s.emailRepo.GetByID(ctx, userID, emailID)
	if err != nil {
		return nil, err
	}

	if req.CategoryID != nil || req.ClearCategory {
		var categoryID *int64
		if req.CategoryID != nil && !req.ClearCategory {
			// Manual assignment must reference the caller's own category.
			if _, err := s.categoryRepo.GetByID(ctx, userID, *req.CategoryID); err != nil {
				return nil, err
			}
			categoryID = req.CategoryID
		}
		if err := s.emailRepo.UpdateCategory(ctx, emailID, categoryID, email.Summary); err != nil {
			return nil, err
		}
		email.CategoryID = categoryID
	}

	if req.IsRead != nil {
		if err := s.emailRepo.UpdateReadStatus(ctx, userID, emailID, *req.IsRead); err != nil {
			return nil, err
		}
		email.IsRead = *req.IsRead
	}

	return email, nil
}

// DeleteEmail trashes the message at the provider, then removes the stored
// row. A message already gone upstream still deletes locally.
func (s *EmailService) DeleteEmail(ctx context.Context, userID uuid.UUID, emailID int64) error {
	if s.provider == nil {
		return apperr.ConfigError("mail provider is not configured")
	}

	email, err := s.emailRepo.GetByID(ctx, userID, emailID)
	if err != nil {
		return err
	}

	account, err := s.accountRepo.GetByUserAndID(ctx, userID, email.AccountID)
	if err != nil {
		return err
	}
	token, err := s.tokens.Token(ctx, account)
	if err != nil {
		return err
	}

	if err := s.provider.Trash(ctx, token, email.MessageID); err != nil {
		var provErr *out.ProviderError
		if !errors.As(err, &provErr) || provErr.Code != out.ProviderErrNotFound {
			return err
		}
		logger.Info("[EmailService.DeleteEmail] message %s already absent upstream", email.MessageID)
	}

	return s.emailRepo.Delete(ctx, userID, emailID)
}
