package account

import (
	"context"
	"testing"
	"time"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
)

func TestEnableWatchWithoutTopicIsConfigError(t *testing.T) {
	repo := newStubAccountRepo(&domain.Account{ID: 1, UserID: testUserID, Email: "a@example.com"})
	svc := NewWatchService(repo, &stubProvider{}, stubTokens{}, &stubProducer{}, "")

	_, err := svc.EnableWatch(context.Background(), testUserID, 1)
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeConfigError {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestEnableWatchStoresCursorAndExpiration(t *testing.T) {
	expiration := time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Millisecond)
	provider := &stubProvider{watchResp: &out.ProviderWatchResponse{
		HistoryID:  "12345",
		Expiration: expiration,
	}}
	repo := newStubAccountRepo(&domain.Account{ID: 1, UserID: testUserID, Email: "a@example.com"})
	svc := NewWatchService(repo, provider, stubTokens{}, &stubProducer{}, "projects/p/topics/mail")

	status, err := svc.EnableWatch(context.Background(), testUserID, 1)
	if err != nil {
		t.Fatalf("EnableWatch() error: %v", err)
	}
	if !status.Active {
		t.Error("freshly enabled watch should be active")
	}
	update := repo.watchUpdates[1]
	if update == nil || update.HistoryID != "12345" || !update.Expiration.Equal(expiration) {
		t.Errorf("stored watch = %+v, want cursor 12345 at %s", update, expiration)
	}
	if len(provider.watched) != 1 || provider.watched[0] != "projects/p/topics/mail" {
		t.Errorf("watched topics = %v", provider.watched)
	}
}

func TestWatchStatusActiveOnlyWhileExpirationInFuture(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Minute)

	tests := []struct {
		name       string
		expiration *time.Time
		want       bool
	}{
		{name: "no subscription", expiration: nil, want: false},
		{name: "expired subscription", expiration: &past, want: false},
		{name: "live subscription", expiration: &future, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubAccountRepo(&domain.Account{
				ID: 1, UserID: testUserID, Email: "a@example.com",
				WatchExpiration: tt.expiration,
			})
			svc := NewWatchService(repo, &stubProvider{}, stubTokens{}, &stubProducer{}, "topic")

			status, err := svc.GetWatchStatus(context.Background(), testUserID, 1)
			if err != nil {
				t.Fatalf("GetWatchStatus() error: %v", err)
			}
			if status.Active != tt.want {
				t.Errorf("Active = %v, want %v", status.Active, tt.want)
			}
		})
	}
}

func TestDisableWatchIsIdempotent(t *testing.T) {
	future := time.Now().Add(time.Hour)
	provider := &stubProvider{}
	repo := newStubAccountRepo(&domain.Account{
		ID: 1, UserID: testUserID, Email: "a@example.com",
		WatchExpiration: &future,
	})
	svc := NewWatchService(repo, provider, stubTokens{}, &stubProducer{}, "topic")

	if err := svc.DisableWatch(context.Background(), testUserID, 1); err != nil {
		t.Fatalf("first DisableWatch() error: %v", err)
	}
	if err := svc.DisableWatch(context.Background(), testUserID, 1); err != nil {
		t.Fatalf("second DisableWatch() should succeed, got: %v", err)
	}
	if repo.accounts[1].WatchExpiration != nil {
		t.Error("watch expiration should be cleared")
	}
	if provider.stopped != 2 {
		t.Errorf("StopWatch calls = %d, want 2", provider.stopped)
	}
}

func TestRenewExpiringQueuesJobs(t *testing.T) {
	soon := time.Now().Add(2 * time.Hour)
	farOut := time.Now().Add(72 * time.Hour)
	producer := &stubProducer{}
	repo := newStubAccountRepo(
		&domain.Account{ID: 1, UserID: testUserID, Email: "a@example.com", WatchExpiration: &soon},
		&domain.Account{ID: 2, UserID: testUserID, Email: "b@example.com", WatchExpiration: &farOut},
	)
	svc := NewWatchService(repo, &stubProvider{}, stubTokens{}, producer, "topic")

	queued, err := svc.RenewExpiring(context.Background())
	if err != nil {
		t.Fatalf("RenewExpiring() error: %v", err)
	}
	if queued != 1 || len(producer.renewJobs) != 1 {
		t.Fatalf("queued = %d jobs = %d, want 1 each", queued, len(producer.renewJobs))
	}
	if producer.renewJobs[0].AccountID != 1 {
		t.Errorf("queued account = %d, want 1", producer.renewJobs[0].AccountID)
	}
}

func TestRenewAccountRewatches(t *testing.T) {
	expiration := time.Now().Add(7 * 24 * time.Hour)
	provider := &stubProvider{watchResp: &out.ProviderWatchResponse{
		HistoryID:  "777",
		Expiration: expiration,
	}}
	repo := newStubAccountRepo(&domain.Account{ID: 1, UserID: testUserID, Email: "a@example.com"})
	svc := NewWatchService(repo, provider, stubTokens{}, &stubProducer{}, "topic")

	if err := svc.RenewAccount(context.Background(), 1); err != nil {
		t.Fatalf("RenewAccount() error: %v", err)
	}
	if update := repo.watchUpdates[1]; update == nil || update.HistoryID != "777" {
		t.Errorf("watch not re-registered: %+v", update)
	}
}
