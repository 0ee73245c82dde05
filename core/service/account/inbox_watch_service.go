package account

import (
	"context"
	"time"

	"github.com/google/uuid"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"
)

// renewWindow is how far ahead of expiry subscriptions get re-registered.
const renewWindow = 24 * time.Hour

// timeNow is swapped in tests.
var timeNow = time.Now

// WatchService manages provider push subscriptions per account.
type WatchService struct {
	accountRepo out.AccountRepository
	provider    out.MailProviderPort
	tokens      TokenSource
	producer    out.MessageProducer

	// Pub/Sub topic notifications are delivered to. Empty means push is
	// not configured for this deployment.
	topic string
}

func NewWatchService(
	accountRepo out.AccountRepository,
	provider out.MailProviderPort,
	tokens TokenSource,
	producer out.MessageProducer,
	topic string,
) *WatchService {
	return &WatchService{
		accountRepo: accountRepo,
		provider:    provider,
		tokens:      tokens,
		producer:    producer,
		topic:       topic,
	}
}

var _ in.WatchService = (*WatchService)(nil)

func (s *WatchService) EnableWatch(ctx context.Context, userID uuid.UUID, accountID int64) (*in.WatchStatus, error) {
	if s.topic == "" {
		return nil, apperr.ConfigError("push notifications require a configured Pub/Sub topic")
	}

	account, err := s.accountRepo.GetByUserAndID(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	return s.watch(ctx, account)
}

// DisableWatch tears down the provider subscription and clears the stored
// state. Disabling an account that has no subscription succeeds.
func (s *WatchService) DisableWatch(ctx context.Context, userID uuid.UUID, accountID int64) error {
	if s.provider == nil {
		return apperr.ConfigError("mail provider is not configured")
	}

	account, err := s.accountRepo.GetByUserAndID(ctx, userID, accountID)
	if err != nil {
		return err
	}

	token, err := s.tokens.Token(ctx, account)
	if err != nil {
		return err
	}
	if err := s.provider.StopWatch(ctx, token); err != nil {
		return err
	}
	return s.accountRepo.ClearWatch(ctx, accountID)
}

func (s *WatchService) GetWatchStatus(ctx context.Context, userID uuid.UUID, accountID int64) (*in.WatchStatus, error) {
	account, err := s.accountRepo.GetByUserAndID(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	return watchStatus(account), nil
}

// RenewExpiring queues a renewal job for every subscription expiring within
// the renewal window.
func (s *WatchService) RenewExpiring(ctx context.Context) (int, error) {
	if s.producer == nil {
		return 0, apperr.ConfigError("job queue is not configured")
	}

	accounts, err := s.accountRepo.ListExpiringWatch(ctx, timeNow().Add(renewWindow))
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, account := range accounts {
		job := &out.WatchRenewJob{AccountID: account.ID}
		if err := s.producer.PublishWatchRenew(ctx, job); err != nil {
			logger.Error("[WatchService.RenewExpiring] queue renewal for %d failed: %v", account.ID, err)
			continue
		}
		queued++
	}
	if queued > 0 {
		logger.Info("[WatchService.RenewExpiring] queued %d renewals", queued)
	}
	return queued, nil
}

// RenewAccount re-registers one account's subscription.
func (s *WatchService) RenewAccount(ctx context.Context, accountID int64) error {
	if s.topic == "" {
		return apperr.ConfigError("push notifications require a configured Pub/Sub topic")
	}
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	_, err = s.watch(ctx, account)
	return err
}

func (s *WatchService) watch(ctx context.Context, account *domain.Account) (*in.WatchStatus, error) {
	if s.provider == nil {
		return nil, apperr.ConfigError("mail provider is not configured")
	}

	token, err := s.tokens.Token(ctx, account)
	if err != nil {
		return nil, err
	}

	resp, err := s.provider.Watch(ctx, token, s.topic)
	if err != nil {
		return nil, err
	}
	if err := s.accountRepo.UpdateWatch(ctx, account.ID, resp.HistoryID, resp.Expiration); err != nil {
		return nil, err
	}

	account.WatchExpiration = &resp.Expiration
	account.LastHistoryID = &resp.HistoryID
	logger.Info("[WatchService] account %d watching until %s", account.ID, resp.Expiration.Format(time.RFC3339))
	return watchStatus(account), nil
}

func watchStatus(account *domain.Account) *in.WatchStatus {
	status := &in.WatchStatus{
		Active:    account.WatchActive(timeNow()),
		HistoryID: account.LastHistoryID,
	}
	if account.WatchExpiration != nil {
		exp := account.WatchExpiration.UTC().Format(time.RFC3339)
		status.Expiration = &exp
	}
	return status
}
