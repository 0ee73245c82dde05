package out

import (
	"context"
)

// MessageProducer defines the outbound port for the job queue.
type MessageProducer interface {
	PublishPushSync(ctx context.Context, job *PushSyncJob) error
	PublishWatchRenew(ctx context.Context, job *WatchRenewJob) error
}

// PushSyncJob triggers an incremental sync after a provider push notification.
type PushSyncJob struct {
	AccountID    int64  `json:"account_id"`
	EmailAddress string `json:"email_address"`
	HistoryID    uint64 `json:"history_id"`
}

// WatchRenewJob re-registers a push subscription before it expires.
type WatchRenewJob struct {
	AccountID int64 `json:"account_id"`
}
