package worker

import (
	"context"
	"fmt"

	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/pkg/logger"
)

// WatchProcessor runs queued push subscription renewals.
type WatchProcessor struct {
	watchService in.WatchService
}

func NewWatchProcessor(watchService in.WatchService) *WatchProcessor {
	return &WatchProcessor{watchService: watchService}
}

// ProcessRenew re-registers one account's Gmail watch.
func (p *WatchProcessor) ProcessRenew(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[out.WatchRenewJob](msg)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	if payload.AccountID == 0 {
		return fmt.Errorf("watch renew job missing account_id")
	}

	if err := p.watchService.RenewAccount(ctx, payload.AccountID); err != nil {
		return fmt.Errorf("renew watch for account %d: %w", payload.AccountID, err)
	}

	logger.Info("[WatchProcessor] Renewed watch for account %d", payload.AccountID)
	return nil
}
