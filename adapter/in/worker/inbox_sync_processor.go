package worker

import (
	"context"
	"fmt"

	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/pkg/logger"
)

// SyncProcessor runs queued mailbox sync jobs.
type SyncProcessor struct {
	syncService in.SyncService
}

func NewSyncProcessor(syncService in.SyncService) *SyncProcessor {
	return &SyncProcessor{syncService: syncService}
}

// ProcessPushSync handles an incremental sync queued by the Gmail webhook.
func (p *SyncProcessor) ProcessPushSync(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[out.PushSyncJob](msg)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	if payload.AccountID == 0 {
		return fmt.Errorf("push sync job missing account_id")
	}

	summary, err := p.syncService.SyncFromPush(ctx, payload.AccountID, payload.HistoryID)
	if err != nil {
		return fmt.Errorf("push sync for account %d: %w", payload.AccountID, err)
	}

	logger.Info("[SyncProcessor] Push sync done for account %d: %d synced, %d categorized, %d archived",
		payload.AccountID, summary.SyncedCount, summary.CategorizedCount, summary.ArchivedCount)
	return nil
}
