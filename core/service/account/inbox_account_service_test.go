package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
)

// Shared fakes for the account and watch service tests.

var testUserID = uuid.MustParse("2b9d3f84-1c5a-4f6e-8d7b-3e2a1c0f9e8d")

type stubAccountRepo struct {
	accounts map[int64]*domain.Account

	watchUpdates map[int64]*out.ProviderWatchResponse
	watchCleared []int64
	deleted      []int64
}

func newStubAccountRepo(accounts ...*domain.Account) *stubAccountRepo {
	r := &stubAccountRepo{
		accounts:     map[int64]*domain.Account{},
		watchUpdates: map[int64]*out.ProviderWatchResponse{},
	}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *stubAccountRepo) Create(_ context.Context, a *domain.Account) error {
	r.accounts[a.ID] = a
	return nil
}

func (r *stubAccountRepo) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return nil, apperr.NotFound("account")
	}
	return a, nil
}

func (r *stubAccountRepo) GetByUserAndID(_ context.Context, userID uuid.UUID, id int64) (*domain.Account, error) {
	a, ok := r.accounts[id]
	if !ok || a.UserID != userID {
		return nil, apperr.NotFound("account")
	}
	return a, nil
}

func (r *stubAccountRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.Account, error) {
	var result []*domain.Account
	for _, a := range r.accounts {
		if a.UserID == userID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *stubAccountRepo) GetByEmailAddress(_ context.Context, email string) (*domain.Account, error) {
	for _, a := range r.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, apperr.NotFound("account")
}

func (r *stubAccountRepo) ListExpiringWatch(_ context.Context, before time.Time) ([]*domain.Account, error) {
	var result []*domain.Account
	for _, a := range r.accounts {
		if a.WatchExpiration != nil && a.WatchExpiration.Before(before) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *stubAccountRepo) Delete(_ context.Context, id int64) error {
	delete(r.accounts, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *stubAccountRepo) UpdateTokens(_ context.Context, _ int64, _, _ string, _ time.Time) error {
	return nil
}

func (r *stubAccountRepo) UpdateLastSyncedAt(_ context.Context, _ int64, _ time.Time) error {
	return nil
}

func (r *stubAccountRepo) UpdateHistoryID(_ context.Context, _ int64, _ string) error { return nil }

func (r *stubAccountRepo) UpdateWatch(_ context.Context, id int64, historyID string, expiration time.Time) error {
	r.watchUpdates[id] = &out.ProviderWatchResponse{HistoryID: historyID, Expiration: expiration}
	if a, ok := r.accounts[id]; ok {
		a.LastHistoryID = &historyID
		a.WatchExpiration = &expiration
	}
	return nil
}

func (r *stubAccountRepo) ClearWatch(_ context.Context, id int64) error {
	r.watchCleared = append(r.watchCleared, id)
	if a, ok := r.accounts[id]; ok {
		a.WatchExpiration = nil
		a.LastHistoryID = nil
	}
	return nil
}

type stubEmailRepo struct {
	deletedAccounts []int64
}

func (r *stubEmailRepo) Insert(_ context.Context, _ *domain.Email) (bool, error) { return false, nil }
func (r *stubEmailRepo) GetByID(_ context.Context, _ uuid.UUID, _ int64) (*domain.Email, error) {
	return nil, apperr.NotFound("email")
}
func (r *stubEmailRepo) List(_ context.Context, _ uuid.UUID, _ *out.EmailListQuery) ([]*domain.Email, int, error) {
	return nil, 0, nil
}
func (r *stubEmailRepo) Delete(_ context.Context, _ uuid.UUID, _ int64) error { return nil }
func (r *stubEmailRepo) ExistingMessageIDs(_ context.Context, _ int64, _ []string) (map[string]struct{}, error) {
	return nil, nil
}
func (r *stubEmailRepo) MaxReceivedAt(_ context.Context, _ int64) (*time.Time, error) {
	return nil, nil
}
func (r *stubEmailRepo) UpdateCategory(_ context.Context, _ int64, _ *int64, _ *string) error {
	return nil
}
func (r *stubEmailRepo) UpdateReadStatus(_ context.Context, _ uuid.UUID, _ int64, _ bool) error {
	return nil
}
func (r *stubEmailRepo) ListForClassification(_ context.Context, _ int64, _ bool) ([]*domain.Email, error) {
	return nil, nil
}
func (r *stubEmailRepo) DeleteByAccountID(_ context.Context, accountID int64) error {
	r.deletedAccounts = append(r.deletedAccounts, accountID)
	return nil
}

type stubBodyRepo struct{}

func (stubBodyRepo) SaveBody(_ context.Context, _ *out.MailBodyEntity) error { return nil }
func (stubBodyRepo) GetBody(_ context.Context, _ int64) (*out.MailBodyEntity, error) {
	return nil, nil
}
func (stubBodyRepo) BulkSaveBody(_ context.Context, _ []*out.MailBodyEntity) error { return nil }
func (stubBodyRepo) DeleteByAccountID(_ context.Context, _ int64) (int64, error)   { return 0, nil }
func (stubBodyRepo) DeleteExpired(_ context.Context) (int64, error)                { return 0, nil }

type stubProvider struct {
	watchResp *out.ProviderWatchResponse
	watchErr  error
	stopped   int
	watched   []string
}

func (p *stubProvider) GetAuthURL(string) string { return "" }
func (p *stubProvider) ExchangeToken(context.Context, string) (*oauth2.Token, error) {
	return nil, errors.New("not implemented")
}
func (p *stubProvider) RefreshToken(_ context.Context, t *oauth2.Token) (*oauth2.Token, error) {
	return t, nil
}
func (p *stubProvider) GetProfile(context.Context, *oauth2.Token) (*out.ProviderProfile, error) {
	return nil, errors.New("not implemented")
}
func (p *stubProvider) ListMessageIDs(context.Context, *oauth2.Token, string, int64) ([]string, error) {
	return nil, nil
}
func (p *stubProvider) GetMessage(context.Context, *oauth2.Token, string) (*out.ProviderMessage, error) {
	return nil, errors.New("not implemented")
}
func (p *stubProvider) Archive(context.Context, *oauth2.Token, string) error { return nil }
func (p *stubProvider) Trash(context.Context, *oauth2.Token, string) error   { return nil }

func (p *stubProvider) Watch(_ context.Context, _ *oauth2.Token, topic string) (*out.ProviderWatchResponse, error) {
	if p.watchErr != nil {
		return nil, p.watchErr
	}
	p.watched = append(p.watched, topic)
	return p.watchResp, nil
}

func (p *stubProvider) StopWatch(context.Context, *oauth2.Token) error {
	p.stopped++
	return nil
}

func (p *stubProvider) ChangesSince(context.Context, *oauth2.Token, string) ([]string, string, error) {
	return nil, "", nil
}

type stubTokens struct{}

func (stubTokens) Token(_ context.Context, _ *domain.Account) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "tok"}, nil
}

type stubProducer struct {
	renewJobs []*out.WatchRenewJob
}

func (p *stubProducer) PublishPushSync(_ context.Context, _ *out.PushSyncJob) error { return nil }
func (p *stubProducer) PublishWatchRenew(_ context.Context, job *out.WatchRenewJob) error {
	p.renewJobs = append(p.renewJobs, job)
	return nil
}

// =============================================================================
// Disconnect
// =============================================================================

const loginEmail = "owner@example.com"

func newAccountService(repo *stubAccountRepo) (*Service, *stubEmailRepo, *stubProvider) {
	emailRepo := &stubEmailRepo{}
	provider := &stubProvider{}
	return NewService(repo, emailRepo, stubBodyRepo{}, provider, stubTokens{}), emailRepo, provider
}

func TestDisconnectPrimaryAccountBlockedWhenOnly(t *testing.T) {
	repo := newStubAccountRepo(&domain.Account{ID: 1, UserID: testUserID, Email: loginEmail})
	svc, _, _ := newAccountService(repo)

	err := svc.Disconnect(context.Background(), testUserID, loginEmail, 1)
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(repo.deleted) != 0 {
		t.Error("account must not be deleted")
	}
}

func TestDisconnectPrimaryAccountAllowedWithSecondAccount(t *testing.T) {
	repo := newStubAccountRepo(
		&domain.Account{ID: 1, UserID: testUserID, Email: loginEmail},
		&domain.Account{ID: 2, UserID: testUserID, Email: "second@example.com"},
	)
	svc, emailRepo, _ := newAccountService(repo)

	if err := svc.Disconnect(context.Background(), testUserID, loginEmail, 1); err != nil {
		t.Fatalf("Disconnect() error: %v", err)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != 1 {
		t.Errorf("deleted accounts = %v, want [1]", repo.deleted)
	}
	if len(emailRepo.deletedAccounts) != 1 || emailRepo.deletedAccounts[0] != 1 {
		t.Errorf("email cleanup accounts = %v, want [1]", emailRepo.deletedAccounts)
	}
}

func TestDisconnectSecondaryAccountAlwaysAllowed(t *testing.T) {
	repo := newStubAccountRepo(&domain.Account{ID: 3, UserID: testUserID, Email: "other@example.com"})
	svc, _, _ := newAccountService(repo)

	if err := svc.Disconnect(context.Background(), testUserID, loginEmail, 3); err != nil {
		t.Fatalf("Disconnect() error: %v", err)
	}
	if len(repo.deleted) != 1 {
		t.Error("secondary account should be removable even when it is the only one")
	}
}

func TestDisconnectForeignAccountRejected(t *testing.T) {
	otherUser := uuid.MustParse("99999999-9999-4999-8999-999999999999")
	repo := newStubAccountRepo(&domain.Account{ID: 1, UserID: otherUser, Email: "x@example.com"})
	svc, _, _ := newAccountService(repo)

	err := svc.Disconnect(context.Background(), testUserID, loginEmail, 1)
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeNotFound {
		t.Fatalf("expected not found for foreign account, got %v", err)
	}
}

func TestDisconnectStopsActiveWatch(t *testing.T) {
	future := time.Now().Add(time.Hour)
	repo := newStubAccountRepo(
		&domain.Account{ID: 1, UserID: testUserID, Email: loginEmail, WatchExpiration: &future},
		&domain.Account{ID: 2, UserID: testUserID, Email: "second@example.com"},
	)
	svc, _, provider := newAccountService(repo)

	if err := svc.Disconnect(context.Background(), testUserID, loginEmail, 1); err != nil {
		t.Fatalf("Disconnect() error: %v", err)
	}
	if provider.stopped != 1 {
		t.Errorf("provider.StopWatch calls = %d, want 1", provider.stopped)
	}
}
