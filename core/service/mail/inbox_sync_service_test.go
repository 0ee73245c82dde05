package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/core/service/classify"
	"inbox_server/pkg/apperr"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeAccountRepo struct {
	accounts   map[int64]*domain.Account
	historyIDs map[int64]string
	synced     map[int64]time.Time
}

func newFakeAccountRepo(accounts ...*domain.Account) *fakeAccountRepo {
	r := &fakeAccountRepo{
		accounts:   map[int64]*domain.Account{},
		historyIDs: map[int64]string{},
		synced:     map[int64]time.Time{},
	}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *fakeAccountRepo) Create(_ context.Context, a *domain.Account) error {
	a.ID = int64(len(r.accounts) + 1)
	r.accounts[a.ID] = a
	return nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return nil, apperr.NotFound("account")
	}
	return a, nil
}

func (r *fakeAccountRepo) GetByUserAndID(_ context.Context, userID uuid.UUID, id int64) (*domain.Account, error) {
	a, ok := r.accounts[id]
	if !ok || a.UserID != userID {
		return nil, apperr.NotFound("account")
	}
	return a, nil
}

func (r *fakeAccountRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.Account, error) {
	var result []*domain.Account
	for i := int64(1); i <= int64(len(r.accounts)); i++ {
		if a, ok := r.accounts[i]; ok && a.UserID == userID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *fakeAccountRepo) GetByEmailAddress(_ context.Context, email string) (*domain.Account, error) {
	for _, a := range r.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, apperr.NotFound("account")
}

func (r *fakeAccountRepo) ListExpiringWatch(_ context.Context, before time.Time) ([]*domain.Account, error) {
	var result []*domain.Account
	for _, a := range r.accounts {
		if a.WatchExpiration != nil && a.WatchExpiration.Before(before) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *fakeAccountRepo) Delete(_ context.Context, id int64) error {
	delete(r.accounts, id)
	return nil
}

func (r *fakeAccountRepo) UpdateTokens(_ context.Context, id int64, access, refresh string, expiry time.Time) error {
	return nil
}

func (r *fakeAccountRepo) UpdateLastSyncedAt(_ context.Context, id int64, syncedAt time.Time) error {
	r.synced[id] = syncedAt
	return nil
}

func (r *fakeAccountRepo) UpdateHistoryID(_ context.Context, id int64, historyID string) error {
	r.historyIDs[id] = historyID
	return nil
}

func (r *fakeAccountRepo) UpdateWatch(_ context.Context, id int64, historyID string, expiration time.Time) error {
	return nil
}

func (r *fakeAccountRepo) ClearWatch(_ context.Context, id int64) error { return nil }

type fakeCategoryRepo struct {
	categories []*domain.Category
}

func (r *fakeCategoryRepo) Create(_ context.Context, c *domain.Category) error { return nil }
func (r *fakeCategoryRepo) GetByID(_ context.Context, _ uuid.UUID, id int64) (*domain.Category, error) {
	for _, c := range r.categories {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, apperr.NotFound("category")
}
func (r *fakeCategoryRepo) ListByUser(_ context.Context, _ uuid.UUID) ([]*domain.Category, error) {
	return r.categories, nil
}
func (r *fakeCategoryRepo) Update(_ context.Context, _ *domain.Category) error       { return nil }
func (r *fakeCategoryRepo) Delete(_ context.Context, _ uuid.UUID, _ int64) error     { return nil }

type fakeEmailRepo struct {
	nextID int64
	emails map[int64]*domain.Email
	byKey  map[string]int64
}

func newFakeEmailRepo() *fakeEmailRepo {
	return &fakeEmailRepo{emails: map[int64]*domain.Email{}, byKey: map[string]int64{}}
}

func emailKey(accountID int64, messageID string) string {
	return fmt.Sprintf("%d|%s", accountID, messageID)
}

func (r *fakeEmailRepo) Insert(_ context.Context, email *domain.Email) (bool, error) {
	key := emailKey(email.AccountID, email.MessageID)
	if _, ok := r.byKey[key]; ok {
		return false, nil
	}
	r.nextID++
	email.ID = r.nextID
	stored := *email
	r.emails[email.ID] = &stored
	r.byKey[key] = email.ID
	return true, nil
}

func (r *fakeEmailRepo) GetByID(_ context.Context, _ uuid.UUID, id int64) (*domain.Email, error) {
	e, ok := r.emails[id]
	if !ok {
		return nil, apperr.NotFound("email")
	}
	return e, nil
}

func (r *fakeEmailRepo) List(_ context.Context, _ uuid.UUID, _ *out.EmailListQuery) ([]*domain.Email, int, error) {
	return nil, 0, nil
}

func (r *fakeEmailRepo) Delete(_ context.Context, _ uuid.UUID, id int64) error {
	if e, ok := r.emails[id]; ok {
		delete(r.byKey, emailKey(e.AccountID, e.MessageID))
		delete(r.emails, id)
	}
	return nil
}

func (r *fakeEmailRepo) ExistingMessageIDs(_ context.Context, accountID int64, messageIDs []string) (map[string]struct{}, error) {
	existing := map[string]struct{}{}
	for _, id := range messageIDs {
		if _, ok := r.byKey[emailKey(accountID, id)]; ok {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}

func (r *fakeEmailRepo) MaxReceivedAt(_ context.Context, accountID int64) (*time.Time, error) {
	var max *time.Time
	for _, e := range r.emails {
		if e.AccountID != accountID {
			continue
		}
		t := e.ReceivedAt
		if max == nil || t.After(*max) {
			max = &t
		}
	}
	return max, nil
}

func (r *fakeEmailRepo) UpdateCategory(_ context.Context, id int64, categoryID *int64, summary *string) error {
	e, ok := r.emails[id]
	if !ok {
		return apperr.NotFound("email")
	}
	e.CategoryID = categoryID
	e.Summary = summary
	return nil
}

func (r *fakeEmailRepo) UpdateReadStatus(_ context.Context, _ uuid.UUID, id int64, isRead bool) error {
	if e, ok := r.emails[id]; ok {
		e.IsRead = isRead
	}
	return nil
}

func (r *fakeEmailRepo) ListForClassification(_ context.Context, accountID int64, onlyUncategorized bool) ([]*domain.Email, error) {
	var result []*domain.Email
	for i := int64(1); i <= r.nextID; i++ {
		e, ok := r.emails[i]
		if !ok || e.AccountID != accountID {
			continue
		}
		if onlyUncategorized && e.CategoryID != nil {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

func (r *fakeEmailRepo) DeleteByAccountID(_ context.Context, accountID int64) error {
	for id, e := range r.emails {
		if e.AccountID == accountID {
			delete(r.byKey, emailKey(e.AccountID, e.MessageID))
			delete(r.emails, id)
		}
	}
	return nil
}

type fakeBodyRepo struct {
	saved []*out.MailBodyEntity
}

func (r *fakeBodyRepo) SaveBody(_ context.Context, b *out.MailBodyEntity) error {
	r.saved = append(r.saved, b)
	return nil
}
func (r *fakeBodyRepo) GetBody(_ context.Context, emailID int64) (*out.MailBodyEntity, error) {
	for _, b := range r.saved {
		if b.EmailID == emailID {
			return b, nil
		}
	}
	return nil, apperr.NotFound("email body")
}
func (r *fakeBodyRepo) BulkSaveBody(_ context.Context, bodies []*out.MailBodyEntity) error {
	r.saved = append(r.saved, bodies...)
	return nil
}
func (r *fakeBodyRepo) DeleteByAccountID(_ context.Context, _ int64) (int64, error) { return 0, nil }
func (r *fakeBodyRepo) DeleteExpired(_ context.Context) (int64, error)              { return 0, nil }

type fakeSettingsRepo struct {
	settings map[uuid.UUID]*domain.UserSettings
}

func (r *fakeSettingsRepo) Get(_ context.Context, userID uuid.UUID) (*domain.UserSettings, error) {
	if s, ok := r.settings[userID]; ok {
		return s, nil
	}
	return &domain.UserSettings{UserID: userID}, nil
}

func (r *fakeSettingsRepo) Upsert(_ context.Context, s *domain.UserSettings) error {
	if r.settings == nil {
		r.settings = map[uuid.UUID]*domain.UserSettings{}
	}
	r.settings[s.UserID] = s
	return nil
}

// fakeProvider keys per-account behavior off the token access string, which
// fakeTokens sets to "tok-<accountID>".
type fakeProvider struct {
	listIDs    map[string][]string
	listErr    map[string]error
	messages   map[string]*out.ProviderMessage
	getErr     map[string]error
	archiveErr map[string]error

	changesIDs    []string
	changesCursor string

	archived []string
	fetched  int
}

func (p *fakeProvider) GetAuthURL(string) string { return "" }
func (p *fakeProvider) ExchangeToken(context.Context, string) (*oauth2.Token, error) {
	return nil, errors.New("not implemented")
}
func (p *fakeProvider) RefreshToken(_ context.Context, t *oauth2.Token) (*oauth2.Token, error) {
	return t, nil
}
func (p *fakeProvider) GetProfile(context.Context, *oauth2.Token) (*out.ProviderProfile, error) {
	return nil, errors.New("not implemented")
}

func (p *fakeProvider) ListMessageIDs(_ context.Context, token *oauth2.Token, _ string, _ int64) ([]string, error) {
	if err := p.listErr[token.AccessToken]; err != nil {
		return nil, err
	}
	return p.listIDs[token.AccessToken], nil
}

func (p *fakeProvider) GetMessage(_ context.Context, _ *oauth2.Token, id string) (*out.ProviderMessage, error) {
	p.fetched++
	if err := p.getErr[id]; err != nil {
		return nil, err
	}
	msg, ok := p.messages[id]
	if !ok {
		return nil, out.NewProviderError("gmail", out.ProviderErrNotFound, "no such message", nil, false)
	}
	return msg, nil
}

func (p *fakeProvider) Archive(_ context.Context, _ *oauth2.Token, id string) error {
	if err := p.archiveErr[id]; err != nil {
		return err
	}
	p.archived = append(p.archived, id)
	return nil
}

func (p *fakeProvider) Trash(context.Context, *oauth2.Token, string) error { return nil }

func (p *fakeProvider) Watch(context.Context, *oauth2.Token, string) (*out.ProviderWatchResponse, error) {
	return nil, errors.New("not implemented")
}
func (p *fakeProvider) StopWatch(context.Context, *oauth2.Token) error { return nil }

func (p *fakeProvider) ChangesSince(_ context.Context, _ *oauth2.Token, _ string) ([]string, string, error) {
	return p.changesIDs, p.changesCursor, nil
}

type fakeTokens struct{}

func (fakeTokens) Token(_ context.Context, a *domain.Account) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: fmt.Sprintf("tok-%d", a.ID)}, nil
}

type fakeProducer struct {
	pushJobs  []*out.PushSyncJob
	renewJobs []*out.WatchRenewJob
}

func (p *fakeProducer) PublishPushSync(_ context.Context, job *out.PushSyncJob) error {
	p.pushJobs = append(p.pushJobs, job)
	return nil
}
func (p *fakeProducer) PublishWatchRenew(_ context.Context, job *out.WatchRenewJob) error {
	p.renewJobs = append(p.renewJobs, job)
	return nil
}

// racingEmailRepo reports every candidate as unseen, so a pre-stored row
// surfaces as an insert conflict rather than being filtered by dedup.
type racingEmailRepo struct {
	*fakeEmailRepo
}

func (r *racingEmailRepo) ExistingMessageIDs(context.Context, int64, []string) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

// subjectClassifier assigns category 1 to subjects containing "work".
type subjectClassifier struct{}

func (subjectClassifier) ClassifyBatch(_ context.Context, items []out.ClassifyItem, categories []domain.Category) ([]out.ClassifyResult, error) {
	results := make([]out.ClassifyResult, len(items))
	for i, item := range items {
		r := out.ClassifyResult{Index: i + 1, Summary: "about " + item.Subject}
		if len(categories) > 0 && strings.Contains(strings.ToLower(item.Subject), "work") {
			id := int64(1)
			r.CategoryID = &id
		}
		results[i] = r
	}
	return results, nil
}

// bodyClassifier assigns category 1 to bodies containing "work".
type bodyClassifier struct{}

func (bodyClassifier) ClassifyBatch(_ context.Context, items []out.ClassifyItem, categories []domain.Category) ([]out.ClassifyResult, error) {
	results := make([]out.ClassifyResult, len(items))
	for i, item := range items {
		r := out.ClassifyResult{Index: i + 1, Summary: "about " + item.Subject}
		if len(categories) > 0 && strings.Contains(strings.ToLower(item.Body), "work") {
			id := int64(1)
			r.CategoryID = &id
		}
		results[i] = r
	}
	return results, nil
}

// =============================================================================
// Fixtures
// =============================================================================

var (
	testUserID = uuid.MustParse("5f0c2a1e-9df4-4e27-9c1f-0a9b8c7d6e5f")
)

func providerMessage(id, subject string, receivedAt time.Time) *out.ProviderMessage {
	return &out.ProviderMessage{
		ExternalID: id,
		ThreadID:   "t-" + id,
		Subject:    subject,
		From:       out.ProviderAddress{Name: "Alice", Email: "alice@example.com"},
		ReceivedAt: receivedAt,
		Labels:     []string{"INBOX"},
		BodyText:   "body of " + id,
	}
}

type syncFixture struct {
	svc         *SyncService
	accountRepo *fakeAccountRepo
	emailRepo   *fakeEmailRepo
	bodyRepo    *fakeBodyRepo
	settings    *fakeSettingsRepo
	provider    *fakeProvider
	producer    *fakeProducer
}

func newSyncFixture(provider *fakeProvider, accounts ...*domain.Account) *syncFixture {
	f := &syncFixture{
		accountRepo: newFakeAccountRepo(accounts...),
		emailRepo:   newFakeEmailRepo(),
		bodyRepo:    &fakeBodyRepo{},
		settings:    &fakeSettingsRepo{},
		provider:    provider,
		producer:    &fakeProducer{},
	}
	categoryRepo := &fakeCategoryRepo{categories: []*domain.Category{
		{ID: 1, UserID: testUserID, Name: "Work"},
		{ID: 2, UserID: testUserID, Name: "Newsletters"},
	}}
	f.svc = NewSyncService(
		f.accountRepo,
		categoryRepo,
		f.emailRepo,
		f.bodyRepo,
		f.settings,
		f.provider,
		classify.NewService(subjectClassifier{}, 0),
		fakeTokens{},
		f.producer,
		nil,
		50,
	)
	return f
}

func testAccount(id int64, email string) *domain.Account {
	return &domain.Account{ID: id, UserID: testUserID, Email: email}
}

// =============================================================================
// Tests
// =============================================================================

func TestSyncFirstRunCountsAndArchives(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{
		listIDs: map[string][]string{"tok-1": {"m1", "m2"}},
		messages: map[string]*out.ProviderMessage{
			"m1": providerMessage("m1", "work meeting", now.Add(-time.Hour)),
			"m2": providerMessage("m2", "sale newsletter", now),
		},
	}
	f := newSyncFixture(provider, testAccount(1, "alice@example.com"))

	accountID := int64(1)
	summary, err := f.svc.Sync(context.Background(), testUserID, &in.SyncRequest{AccountID: &accountID})
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}

	if summary.SyncedCount != 2 || summary.CategorizedCount != 1 || summary.UncategorizedCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1",
			summary.SyncedCount, summary.CategorizedCount, summary.UncategorizedCount)
	}
	if summary.ArchivedCount != 2 {
		t.Errorf("archived = %d, want 2", summary.ArchivedCount)
	}
	if summary.LastSyncedAt == nil {
		t.Error("LastSyncedAt should be set after a successful run")
	}
	if len(f.bodyRepo.saved) != 2 {
		t.Errorf("expected 2 bodies saved, got %d", len(f.bodyRepo.saved))
	}

	breakdown := summary.CategoryBreakdown
	if len(breakdown) != 2 {
		t.Fatalf("breakdown entries = %d, want 2", len(breakdown))
	}
	if breakdown[len(breakdown)-1].CategoryID != nil {
		t.Error("uncategorized entry must be last in the breakdown")
	}
}

func TestSyncReimportCreatesNoDuplicates(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{
		listIDs: map[string][]string{"tok-1": {"m1", "m2"}},
		messages: map[string]*out.ProviderMessage{
			"m1": providerMessage("m1", "a", now.Add(-time.Hour)),
			"m2": providerMessage("m2", "b", now),
		},
	}
	f := newSyncFixture(provider, testAccount(1, "alice@example.com"))

	accountID := int64(1)
	req := &in.SyncRequest{AccountID: &accountID}
	if _, err := f.svc.Sync(context.Background(), testUserID, req); err != nil {
		t.Fatalf("first Sync() error: %v", err)
	}
	second, err := f.svc.Sync(context.Background(), testUserID, req)
	if err != nil {
		t.Fatalf("second Sync() error: %v", err)
	}

	if second.SyncedCount != 0 {
		t.Errorf("second run synced %d, want 0", second.SyncedCount)
	}
	if len(f.emailRepo.emails) != 2 {
		t.Errorf("stored emails = %d, want 2", len(f.emailRepo.emails))
	}
}

func TestSyncAccountFailureIsIsolated(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{
		listIDs: map[string][]string{"tok-2": {"m1", "m2"}},
		listErr: map[string]error{
			"tok-1": out.NewProviderError("gmail", out.ProviderErrServer, "backend error", nil, true),
		},
		messages: map[string]*out.ProviderMessage{
			"m1": providerMessage("m1", "a", now.Add(-time.Hour)),
			"m2": providerMessage("m2", "b", now),
		},
	}
	f := newSyncFixture(provider,
		testAccount(1, "broken@example.com"),
		testAccount(2, "fine@example.com"),
	)

	summary, err := f.svc.Sync(context.Background(), testUserID, &in.SyncRequest{})
	if err != nil {
		t.Fatalf("Sync() should not fail when one account fails: %v", err)
	}
	if summary.SyncedCount != 2 {
		t.Errorf("synced = %d, want 2 from the healthy account", summary.SyncedCount)
	}
	if _, ok := f.accountRepo.synced[1]; ok {
		t.Error("failed account must not get last_synced_at")
	}
	if _, ok := f.accountRepo.synced[2]; !ok {
		t.Error("healthy account should get last_synced_at")
	}
}

func TestSyncSkipsUnfetchableMessages(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{
		listIDs: map[string][]string{"tok-1": {"m1", "m2"}},
		getErr: map[string]error{
			"m2": out.NewProviderError("gmail", out.ProviderErrServer, "flaky", nil, true),
		},
		messages: map[string]*out.ProviderMessage{
			"m1": providerMessage("m1", "a", now),
		},
	}
	f := newSyncFixture(provider, testAccount(1, "alice@example.com"))

	accountID := int64(1)
	summary, err := f.svc.Sync(context.Background(), testUserID, &in.SyncRequest{AccountID: &accountID})
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if summary.SyncedCount != 1 {
		t.Errorf("synced = %d, want 1 (failed fetch skipped)", summary.SyncedCount)
	}
}

func TestSyncArchiveFailureDoesNotRollBack(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{
		listIDs: map[string][]string{"tok-1": {"m1"}},
		messages: map[string]*out.ProviderMessage{
			"m1": providerMessage("m1", "a", now),
		},
		archiveErr: map[string]error{
			"m1": out.NewProviderError("gmail", out.ProviderErrRateLimit, "quota", nil, true),
		},
	}
	f := newSyncFixture(provider, testAccount(1, "alice@example.com"))

	accountID := int64(1)
	summary, err := f.svc.Sync(context.Background(), testUserID, &in.SyncRequest{AccountID: &accountID})
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if summary.SyncedCount != 1 {
		t.Errorf("synced = %d, want 1", summary.SyncedCount)
	}
	if summary.ArchivedCount != 0 {
		t.Errorf("archived = %d, want 0", summary.ArchivedCount)
	}
	if len(f.emailRepo.emails) != 1 {
		t.Error("stored email must survive an archive failure")
	}
}

func TestSyncFromPushAdvancesCursorOnZeroMessages(t *testing.T) {
	provider := &fakeProvider{changesCursor: "98765"}
	f := newSyncFixture(provider, testAccount(1, "alice@example.com"))
	f.settings.Upsert(context.Background(), &domain.UserSettings{UserID: testUserID, SyncOnPush: true})

	summary, err := f.svc.SyncFromPush(context.Background(), 1, 98765)
	if err != nil {
		t.Fatalf("SyncFromPush() error: %v", err)
	}
	if summary.SyncedCount != 0 {
		t.Errorf("synced = %d, want 0", summary.SyncedCount)
	}
	if got := f.accountRepo.historyIDs[1]; got != "98765" {
		t.Errorf("history cursor = %q, want advanced to 98765 despite zero messages", got)
	}
}

func TestSyncFromPushSkipsWhenDisabled(t *testing.T) {
	provider := &fakeProvider{changesIDs: []string{"m1"}, changesCursor: "5"}
	f := newSyncFixture(provider, testAccount(1, "alice@example.com"))

	summary, err := f.svc.SyncFromPush(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("SyncFromPush() error: %v", err)
	}
	if summary.SyncedCount != 0 || provider.fetched != 0 {
		t.Error("disabled push sync must not touch the provider")
	}
	if _, ok := f.accountRepo.historyIDs[1]; ok {
		t.Error("disabled push sync must not advance the cursor")
	}
}

func TestHandlePushNotification(t *testing.T) {
	provider := &fakeProvider{}
	f := newSyncFixture(provider, testAccount(1, "alice@example.com"))

	tests := []struct {
		name        string
		email       string
		syncOnPush  bool
		wantStatus  string
		wantReason  string
		wantQueued  int
	}{
		{
			name:       "unknown mailbox is ignored",
			email:      "stranger@example.com",
			wantStatus: "ignored",
			wantReason: "unknown account",
		},
		{
			name:       "disabled sync-on-push is ignored",
			email:      "alice@example.com",
			wantStatus: "ignored",
			wantReason: "auto sync disabled",
		},
		{
			name:       "enabled account queues a job",
			email:      "alice@example.com",
			syncOnPush: true,
			wantStatus: "accepted",
			wantQueued: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.producer.pushJobs = nil
			f.settings.Upsert(context.Background(), &domain.UserSettings{UserID: testUserID, SyncOnPush: tt.syncOnPush})

			receipt, err := f.svc.HandlePushNotification(context.Background(), tt.email, 42)
			if err != nil {
				t.Fatalf("HandlePushNotification() error: %v", err)
			}
			if receipt.Status != tt.wantStatus || receipt.Reason != tt.wantReason {
				t.Errorf("receipt = %s/%s, want %s/%s", receipt.Status, receipt.Reason, tt.wantStatus, tt.wantReason)
			}
			if len(f.producer.pushJobs) != tt.wantQueued {
				t.Errorf("queued jobs = %d, want %d", len(f.producer.pushJobs), tt.wantQueued)
			}
		})
	}
}

func TestRecategorizeRequiresCategories(t *testing.T) {
	provider := &fakeProvider{}
	f := newSyncFixture(provider, testAccount(1, "alice@example.com"))
	// Swap in an empty category set.
	f.svc.categoryRepo = &fakeCategoryRepo{}

	_, err := f.svc.Recategorize(context.Background(), testUserID, &in.RecategorizeRequest{})
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeValidationFailed {
		t.Errorf("expected validation failure, got %v", err)
	}
}

func TestRecategorizeReclassifiesWithoutFetching(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{
		listIDs: map[string][]string{"tok-1": {"m1", "m2"}},
		messages: map[string]*out.ProviderMessage{
			"m1": providerMessage("m1", "untitled", now.Add(-time.Hour)),
			"m2": providerMessage("m2", "untitled too", now),
		},
	}
	f := newSyncFixture(provider, testAccount(1, "alice@example.com"))

	accountID := int64(1)
	if _, err := f.svc.Sync(context.Background(), testUserID, &in.SyncRequest{AccountID: &accountID}); err != nil {
		t.Fatalf("seed Sync() error: %v", err)
	}
	fetchesAfterSync := provider.fetched

	// Retitle the stored rows so the classifier now matches them.
	for _, e := range f.emailRepo.emails {
		e.Subject = "work item"
	}

	summary, err := f.svc.Recategorize(context.Background(), testUserID, &in.RecategorizeRequest{OnlyUncategorized: true})
	if err != nil {
		t.Fatalf("Recategorize() error: %v", err)
	}
	if summary.SyncedCount != 2 || summary.CategorizedCount != 2 {
		t.Errorf("recategorize counts = %d/%d, want 2/2", summary.SyncedCount, summary.CategorizedCount)
	}
	if summary.ArchivedCount != 0 {
		t.Errorf("recategorize archived = %d, want 0", summary.ArchivedCount)
	}
	if provider.fetched != fetchesAfterSync {
		t.Error("recategorize must not fetch from the provider")
	}
	if len(f.emailRepo.emails) != 2 {
		t.Error("recategorize must not create rows")
	}
}

func TestSyncBreakdownCoversRunOnly(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{
		listIDs: map[string][]string{"tok-1": {"m1", "m2"}},
		messages: map[string]*out.ProviderMessage{
			"m1": providerMessage("m1", "work meeting", now.Add(-time.Hour)),
			"m2": providerMessage("m2", "sale newsletter", now),
		},
	}
	f := newSyncFixture(provider, testAccount(1, "alice@example.com"))

	accountID := int64(1)
	req := &in.SyncRequest{AccountID: &accountID}
	first, err := f.svc.Sync(context.Background(), testUserID, req)
	if err != nil {
		t.Fatalf("first Sync() error: %v", err)
	}
	if len(first.CategoryBreakdown) != 2 {
		t.Fatalf("first breakdown entries = %d, want 2", len(first.CategoryBreakdown))
	}
	if got := first.CategoryBreakdown[0].CategoryName; got != "Work" {
		t.Errorf("first breakdown[0] name = %q, want Work", got)
	}

	second, err := f.svc.Sync(context.Background(), testUserID, req)
	if err != nil {
		t.Fatalf("second Sync() error: %v", err)
	}
	if len(second.CategoryBreakdown) != 0 {
		t.Errorf("a run that imports nothing must report an empty breakdown, got %v", second.CategoryBreakdown)
	}
}

func TestSyncInsertConflictIsBenign(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{
		listIDs:  map[string][]string{"tok-1": {"m1"}},
		messages: map[string]*out.ProviderMessage{"m1": providerMessage("m1", "a", now)},
	}
	f := newSyncFixture(provider, testAccount(1, "alice@example.com"))

	// The same message lands via a concurrent import between the dedup
	// check and the insert.
	if _, err := f.emailRepo.Insert(context.Background(), &domain.Email{AccountID: 1, MessageID: "m1", ReceivedAt: now}); err != nil {
		t.Fatalf("seed insert: %v", err)
	}
	f.svc.emailRepo = &racingEmailRepo{f.emailRepo}

	accountID := int64(1)
	summary, err := f.svc.Sync(context.Background(), testUserID, &in.SyncRequest{AccountID: &accountID})
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if summary.SyncedCount != 0 {
		t.Errorf("synced = %d, want 0 when the stored row wins the race", summary.SyncedCount)
	}
	if summary.ArchivedCount != 0 {
		t.Errorf("archived = %d, want 0 for the losing writer", summary.ArchivedCount)
	}
	if len(f.emailRepo.emails) != 1 {
		t.Errorf("stored emails = %d, want 1", len(f.emailRepo.emails))
	}
}

func TestSyncWithoutBodyStoreStillImports(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{
		listIDs:  map[string][]string{"tok-1": {"m1"}},
		messages: map[string]*out.ProviderMessage{"m1": providerMessage("m1", "a", now)},
	}
	f := newSyncFixture(provider, testAccount(1, "alice@example.com"))
	f.svc.bodyRepo = nil

	accountID := int64(1)
	summary, err := f.svc.Sync(context.Background(), testUserID, &in.SyncRequest{AccountID: &accountID})
	if err != nil {
		t.Fatalf("Sync() without a body store error: %v", err)
	}
	if summary.SyncedCount != 1 {
		t.Errorf("synced = %d, want 1", summary.SyncedCount)
	}
}

func TestSyncWithoutProviderIsConfigError(t *testing.T) {
	f := newSyncFixture(&fakeProvider{}, testAccount(1, "alice@example.com"))
	f.svc.provider = nil

	accountID := int64(1)
	_, err := f.svc.Sync(context.Background(), testUserID, &in.SyncRequest{AccountID: &accountID})
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeConfigError {
		t.Errorf("expected config error without a provider, got %v", err)
	}
}

func TestHandlePushWithoutQueueIsConfigError(t *testing.T) {
	f := newSyncFixture(&fakeProvider{}, testAccount(1, "alice@example.com"))
	f.settings.Upsert(context.Background(), &domain.UserSettings{UserID: testUserID, SyncOnPush: true})
	f.svc.producer = nil

	_, err := f.svc.HandlePushNotification(context.Background(), "alice@example.com", 7)
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeConfigError {
		t.Errorf("expected config error without a job queue, got %v", err)
	}
}

func TestRecategorizeHydratesBodiesFromStore(t *testing.T) {
	now := time.Now()
	msg := providerMessage("m1", "untitled", now)
	msg.BodyText = "the work project update"
	provider := &fakeProvider{
		listIDs:  map[string][]string{"tok-1": {"m1"}},
		messages: map[string]*out.ProviderMessage{"m1": msg},
	}
	f := newSyncFixture(provider, testAccount(1, "alice@example.com"))

	accountID := int64(1)
	if _, err := f.svc.Sync(context.Background(), testUserID, &in.SyncRequest{AccountID: &accountID}); err != nil {
		t.Fatalf("seed Sync() error: %v", err)
	}

	// Stored rows carry no body text, so only the body store copy can match.
	f.svc.classifier = classify.NewService(bodyClassifier{}, 0)

	summary, err := f.svc.Recategorize(context.Background(), testUserID, &in.RecategorizeRequest{OnlyUncategorized: true})
	if err != nil {
		t.Fatalf("Recategorize() error: %v", err)
	}
	if summary.CategorizedCount != 1 {
		t.Errorf("categorized = %d, want 1 from the hydrated body", summary.CategorizedCount)
	}
}
