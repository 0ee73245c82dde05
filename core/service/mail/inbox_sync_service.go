// Package mail implements email import, classification orchestration and
// mailbox queries over the provider and repository ports.
package mail

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/core/service/classify"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"
)

// DefaultMaxResults bounds one candidate listing when the request does not
// set its own limit.
const DefaultMaxResults = 50

// TokenSource resolves a usable OAuth token for an account, refreshing it
// when needed. Satisfied by auth.OAuthService.
type TokenSource interface {
	Token(ctx context.Context, account *domain.Account) (*oauth2.Token, error)
}

// SyncService runs the staged import pipeline: resolve cursor, list
// candidates, dedup, fetch, classify, persist, archive, advance cursor.
// Failures isolate at account scope; per-message fetch errors skip the
// message only.
type SyncService struct {
	accountRepo  out.AccountRepository
	categoryRepo out.CategoryRepository
	emailRepo    out.EmailRepository
	bodyRepo     out.EmailBodyRepository
	settingsRepo out.SettingsRepository
	provider     out.MailProviderPort
	classifier   *classify.Service
	tokens       TokenSource
	producer     out.MessageProducer
	realtime     out.RealtimePort

	maxResults int64

	// Concurrent syncs of one account collapse into a single run.
	group singleflight.Group
}

func NewSyncService(
	accountRepo out.AccountRepository,
	categoryRepo out.CategoryRepository,
	emailRepo out.EmailRepository,
	bodyRepo out.EmailBodyRepository,
	settingsRepo out.SettingsRepository,
	provider out.MailProviderPort,
	classifier *classify.Service,
	tokens TokenSource,
	producer out.MessageProducer,
	realtime out.RealtimePort,
	maxResults int64,
) *SyncService {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &SyncService{
		accountRepo:  accountRepo,
		categoryRepo: categoryRepo,
		emailRepo:    emailRepo,
		bodyRepo:     bodyRepo,
		settingsRepo: settingsRepo,
		provider:     provider,
		classifier:   classifier,
		tokens:       tokens,
		producer:     producer,
		realtime:     realtime,
		maxResults:   maxResults,
	}
}

var _ in.SyncService = (*SyncService)(nil)

// =============================================================================
// Manual sync
// =============================================================================

func (s *SyncService) Sync(ctx context.Context, userID uuid.UUID, req *in.SyncRequest) (*domain.SyncSummary, error) {
	if req == nil {
		req = &in.SyncRequest{}
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	if req.AccountID != nil {
		account, err := s.accountRepo.GetByUserAndID(ctx, userID, *req.AccountID)
		if err != nil {
			return nil, err
		}
		return s.syncAccountOnce(ctx, account, maxResults, req.OlderThan)
	}

	accounts, err := s.accountRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	total := &domain.SyncSummary{}
	var breakdowns [][]domain.CategoryCount
	for _, account := range accounts {
		summary, err := s.syncAccountOnce(ctx, account, maxResults, req.OlderThan)
		if err != nil {
			// One broken account must not sink the rest.
			logger.Error("[SyncService.Sync] account %d (%s) failed: %v", account.ID, account.Email, err)
			continue
		}
		total.Merge(summary)
		breakdowns = append(breakdowns, summary.CategoryBreakdown)
	}
	total.CategoryBreakdown = mergeBreakdowns(breakdowns)
	return total, nil
}

// syncAccountOnce collapses concurrent requests for one account into a
// single pipeline run; latecomers share its result.
func (s *SyncService) syncAccountOnce(ctx context.Context, account *domain.Account, maxResults int64, olderThan *time.Time) (*domain.SyncSummary, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(account.ID, 10), func() (interface{}, error) {
		return s.syncAccount(ctx, account, maxResults, olderThan)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.SyncSummary), nil
}

func (s *SyncService) syncAccount(ctx context.Context, account *domain.Account, maxResults int64, olderThan *time.Time) (summary *domain.SyncSummary, err error) {
	if s.provider == nil {
		return nil, apperr.ConfigError("mail provider is not configured")
	}

	start := time.Now()
	logger.Info("[SyncService.syncAccount] Starting for account %d (%s)", account.ID, account.Email)
	s.pushEvent(ctx, account.UserID, domain.EventSyncStarted, map[string]interface{}{
		"account_id": account.ID,
	})
	defer func() {
		if err != nil {
			s.pushEvent(ctx, account.UserID, domain.EventSyncFailed, map[string]interface{}{
				"account_id": account.ID,
				"error":      err.Error(),
			})
		}
	}()

	token, err := s.tokens.Token(ctx, account)
	if err != nil {
		return nil, err
	}

	// Resolve cursor and list candidates.
	watermark, err := s.emailRepo.MaxReceivedAt(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	query := BuildListQuery(watermark, olderThan)
	candidates, err := s.provider.ListMessageIDs(ctx, token, query, maxResults)
	if err != nil {
		return nil, err
	}

	summary, err = s.importMessages(ctx, account, token, candidates)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.accountRepo.UpdateLastSyncedAt(ctx, account.ID, now); err != nil {
		return nil, err
	}
	summary.LastSyncedAt = &now

	s.pushEvent(ctx, account.UserID, domain.EventSyncCompleted, summary)
	logger.Info("[SyncService.syncAccount] Account %d done: %d synced, %d archived in %v",
		account.ID, summary.SyncedCount, summary.ArchivedCount, time.Since(start))
	return summary, nil
}

// importMessages runs dedup, fetch, classify, persist and archive for the
// candidate IDs and returns the per-account summary.
func (s *SyncService) importMessages(ctx context.Context, account *domain.Account, token *oauth2.Token, candidates []string) (*domain.SyncSummary, error) {
	summary := &domain.SyncSummary{}

	existing, err := s.emailRepo.ExistingMessageIDs(ctx, account.ID, candidates)
	if err != nil {
		return nil, err
	}
	unseen := filterUnseen(candidates, existing)

	// Fetch details. A message that fails to load is skipped, not fatal.
	emails := make([]*domain.Email, 0, len(unseen))
	for _, id := range unseen {
		msg, err := s.provider.GetMessage(ctx, token, id)
		if err != nil {
			logger.Warn("[SyncService] account %d: skipping message %s: %v", account.ID, id, err)
			continue
		}
		emails = append(emails, messageToEmail(account.ID, msg))
	}

	if len(emails) > 0 {
		categories, err := s.categoryRepo.ListByUser(ctx, account.UserID)
		if err != nil {
			return nil, err
		}
		cats := make([]domain.Category, len(categories))
		for i, c := range categories {
			cats[i] = *c
		}
		outcomes := s.classifier.ClassifyEmails(ctx, emails, cats)

		runCounts := make(map[int64]int)
		uncategorized := 0
		bodies := make([]*out.MailBodyEntity, 0, len(emails))
		for i, email := range emails {
			outcome := outcomes[i]
			email.CategoryID = outcome.CategoryID
			if outcome.Summary != "" {
				summaryText := outcome.Summary
				email.Summary = &summaryText
			}

			bodyText, bodyHTML := email.BodyText, email.BodyHTML
			email.BodyText, email.BodyHTML = "", ""

			inserted, err := s.emailRepo.Insert(ctx, email)
			if err != nil {
				logger.Error("[SyncService] account %d: insert %s failed: %v", account.ID, email.MessageID, err)
				continue
			}
			if !inserted {
				// Raced with another import; the stored row wins.
				continue
			}

			summary.SyncedCount++
			if email.CategoryID != nil {
				summary.CategorizedCount++
				runCounts[*email.CategoryID]++
			} else {
				summary.UncategorizedCount++
				uncategorized++
			}

			body := out.NewMailBodyEntity(email.ID, account.ID, email.MessageID)
			body.Text = bodyText
			body.HTML = bodyHTML
			bodies = append(bodies, body)

			if err := s.provider.Archive(ctx, token, email.MessageID); err != nil {
				// The email is already stored; archiving is cleanup only.
				logger.Warn("[SyncService] account %d: archive %s failed: %v", account.ID, email.MessageID, err)
			} else {
				summary.ArchivedCount++
			}

			s.pushEvent(ctx, account.UserID, domain.EventNewEmail, email)
		}

		// Bodies are metadata-adjacent cache only; run without a body store.
		if s.bodyRepo != nil && len(bodies) > 0 {
			if err := s.bodyRepo.BulkSaveBody(ctx, bodies); err != nil {
				logger.Warn("[SyncService] account %d: body save failed: %v", account.ID, err)
			}
		}

		// The breakdown tallies this run's outcomes, not the whole mailbox.
		summary.CategoryBreakdown = RunBreakdown(runCounts, uncategorized, cats)
	}

	return summary, nil
}

// =============================================================================
// Re-categorization
// =============================================================================

func (s *SyncService) Recategorize(ctx context.Context, userID uuid.UUID, req *in.RecategorizeRequest) (*domain.SyncSummary, error) {
	if req == nil {
		req = &in.RecategorizeRequest{}
	}

	categories, err := s.categoryRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		return nil, apperr.ValidationFailed("at least one category is required to recategorize")
	}
	cats := make([]domain.Category, len(categories))
	for i, c := range categories {
		cats[i] = *c
	}

	var accounts []*domain.Account
	if req.AccountID != nil {
		account, err := s.accountRepo.GetByUserAndID(ctx, userID, *req.AccountID)
		if err != nil {
			return nil, err
		}
		accounts = []*domain.Account{account}
	} else {
		if accounts, err = s.accountRepo.ListByUser(ctx, userID); err != nil {
			return nil, err
		}
	}

	total := &domain.SyncSummary{}
	var breakdowns [][]domain.CategoryCount
	for _, account := range accounts {
		summary, err := s.recategorizeAccount(ctx, account, cats, req.OnlyUncategorized)
		if err != nil {
			logger.Error("[SyncService.Recategorize] account %d failed: %v", account.ID, err)
			continue
		}
		total.Merge(summary)
		breakdowns = append(breakdowns, summary.CategoryBreakdown)
	}
	total.CategoryBreakdown = mergeBreakdowns(breakdowns)
	return total, nil
}

// recategorizeAccount reruns classification over stored rows. No provider
// fetch, no archiving, no new rows.
func (s *SyncService) recategorizeAccount(ctx context.Context, account *domain.Account, categories []domain.Category, onlyUncategorized bool) (*domain.SyncSummary, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(account.ID, 10), func() (interface{}, error) {
		emails, err := s.emailRepo.ListForClassification(ctx, account.ID, onlyUncategorized)
		if err != nil {
			return nil, err
		}

		// Stored rows carry no body text; hydrate it from the body store so
		// reclassification sees more than subject and sender. A missing or
		// expired body leaves the email as-is.
		if s.bodyRepo != nil {
			for _, email := range emails {
				body, err := s.bodyRepo.GetBody(ctx, email.ID)
				if err != nil || body == nil {
					continue
				}
				email.BodyText = body.Text
			}
		}

		summary := &domain.SyncSummary{LastSyncedAt: account.LastSyncedAt}
		runCounts := make(map[int64]int)
		uncategorized := 0
		outcomes := s.classifier.ClassifyEmails(ctx, emails, categories)
		for _, outcome := range outcomes {
			summaryText := outcome.Summary
			if err := s.emailRepo.UpdateCategory(ctx, outcome.EmailID, outcome.CategoryID, &summaryText); err != nil {
				logger.Error("[SyncService] update category for email %d failed: %v", outcome.EmailID, err)
				continue
			}
			summary.SyncedCount++
			if outcome.CategoryID != nil {
				summary.CategorizedCount++
				runCounts[*outcome.CategoryID]++
			} else {
				summary.UncategorizedCount++
				uncategorized++
			}
		}

		summary.CategoryBreakdown = RunBreakdown(runCounts, uncategorized, categories)
		return summary, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.SyncSummary), nil
}

// =============================================================================
// Push notifications
// =============================================================================

func (s *SyncService) HandlePushNotification(ctx context.Context, emailAddress string, historyID uint64) (*in.PushReceipt, error) {
	account, err := s.accountRepo.GetByEmailAddress(ctx, emailAddress)
	if err != nil {
		var appErr *apperr.AppError
		if errors.As(err, &appErr) && appErr.Code == apperr.CodeNotFound {
			return &in.PushReceipt{Status: "ignored", Reason: "unknown account"}, nil
		}
		return nil, err
	}
	if account == nil {
		return &in.PushReceipt{Status: "ignored", Reason: "unknown account"}, nil
	}

	settings, err := s.settingsRepo.Get(ctx, account.UserID)
	if err != nil {
		return nil, err
	}
	if !settings.SyncOnPush {
		return &in.PushReceipt{Status: "ignored", Reason: "auto sync disabled"}, nil
	}

	if s.producer == nil {
		return nil, apperr.ConfigError("job queue is not configured")
	}

	job := &out.PushSyncJob{
		AccountID:    account.ID,
		EmailAddress: emailAddress,
		HistoryID:    historyID,
	}
	if err := s.producer.PublishPushSync(ctx, job); err != nil {
		return nil, err
	}
	return &in.PushReceipt{Status: "accepted"}, nil
}

// SyncFromPush runs the incremental history sync queued by a notification.
// The history cursor advances to the notified position even when the
// changes resolve to zero new messages.
func (s *SyncService) SyncFromPush(ctx context.Context, accountID int64, historyID uint64) (*domain.SyncSummary, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	// The setting may have been toggled between enqueue and execution.
	settings, err := s.settingsRepo.Get(ctx, account.UserID)
	if err != nil {
		return nil, err
	}
	if !settings.SyncOnPush {
		logger.Info("[SyncService.SyncFromPush] account %d: push sync disabled, skipping", accountID)
		return &domain.SyncSummary{}, nil
	}

	v, err, _ := s.group.Do(strconv.FormatInt(account.ID, 10), func() (interface{}, error) {
		return s.syncAccountFromHistory(ctx, account, historyID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.SyncSummary), nil
}

func (s *SyncService) syncAccountFromHistory(ctx context.Context, account *domain.Account, notifiedID uint64) (*domain.SyncSummary, error) {
	if s.provider == nil {
		return nil, apperr.ConfigError("mail provider is not configured")
	}

	token, err := s.tokens.Token(ctx, account)
	if err != nil {
		return nil, err
	}

	startCursor := strconv.FormatUint(notifiedID, 10)
	if account.LastHistoryID != nil && *account.LastHistoryID != "" {
		startCursor = *account.LastHistoryID
	}

	ids, newCursor, err := s.provider.ChangesSince(ctx, token, startCursor)
	if err != nil {
		return nil, err
	}

	summary, err := s.importMessages(ctx, account, token, ids)
	if err != nil {
		return nil, err
	}

	advance := newCursor
	if advance == "" {
		advance = strconv.FormatUint(notifiedID, 10)
	}
	if err := s.accountRepo.UpdateHistoryID(ctx, account.ID, advance); err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.accountRepo.UpdateLastSyncedAt(ctx, account.ID, now); err != nil {
		return nil, err
	}
	summary.LastSyncedAt = &now

	if summary.SyncedCount > 0 {
		s.pushEvent(ctx, account.UserID, domain.EventSyncCompleted, summary)
	}
	logger.Info("[SyncService.SyncFromPush] account %d: %d synced, cursor -> %s",
		account.ID, summary.SyncedCount, advance)
	return summary, nil
}

// =============================================================================
// Helpers
// =============================================================================

func messageToEmail(accountID int64, msg *out.ProviderMessage) *domain.Email {
	return &domain.Email{
		AccountID:   accountID,
		MessageID:   msg.ExternalID,
		ThreadID:    msg.ThreadID,
		Subject:     msg.Subject,
		SenderName:  msg.From.Name,
		SenderEmail: msg.From.Email,
		ReceivedAt:  msg.ReceivedAt,
		IsRead:      msg.IsRead,
		Labels:      msg.Labels,
		BodyText:    msg.BodyText,
		BodyHTML:    msg.BodyHTML,
	}
}

// mergeBreakdowns sums per-category rows across accounts and reorders them.
func mergeBreakdowns(breakdowns [][]domain.CategoryCount) []domain.CategoryCount {
	if len(breakdowns) == 1 {
		return breakdowns[0]
	}

	type key struct {
		id   int64
		null bool
	}
	merged := make(map[key]*domain.CategoryCount)
	var order []key
	for _, breakdown := range breakdowns {
		for _, c := range breakdown {
			k := key{null: c.CategoryID == nil}
			if c.CategoryID != nil {
				k.id = *c.CategoryID
			}
			if row, ok := merged[k]; ok {
				row.Count += c.Count
				continue
			}
			row := c
			merged[k] = &row
			order = append(order, k)
		}
	}

	flat := make([]domain.CategoryCount, 0, len(order))
	for _, k := range order {
		flat = append(flat, *merged[k])
	}
	return BuildBreakdown(flat)
}

func (s *SyncService) pushEvent(ctx context.Context, userID uuid.UUID, eventType domain.EventType, data interface{}) {
	if s.realtime == nil {
		return
	}
	uid := userID.String()
	if err := s.realtime.Push(ctx, uid, domain.NewEvent(eventType, uid, data)); err != nil {
		logger.Warn("[SyncService] realtime push failed: %v", err)
	}
}
