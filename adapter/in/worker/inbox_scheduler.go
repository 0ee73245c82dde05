package worker

import (
	"context"
	"time"

	"inbox_server/core/port/in"
	"inbox_server/pkg/logger"
)

// =============================================================================
// WatchRenewScheduler
// =============================================================================
//
// Gmail watch registrations expire after seven days. The scheduler queues
// renewal jobs for subscriptions inside the renewal window.

type WatchRenewScheduler struct {
	watchService  in.WatchService
	checkInterval time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
}

func NewWatchRenewScheduler(watchService in.WatchService, checkInterval time.Duration) *WatchRenewScheduler {
	if checkInterval <= 0 {
		checkInterval = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WatchRenewScheduler{
		watchService:  watchService,
		checkInterval: checkInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start starts the scheduler loop.
func (s *WatchRenewScheduler) Start() {
	logger.Info("[WatchRenewScheduler] Starting with interval %v", s.checkInterval)
	go s.run()
}

// Stop stops the scheduler.
func (s *WatchRenewScheduler) Stop() {
	logger.Info("[WatchRenewScheduler] Stopping...")
	s.cancel()
}

func (s *WatchRenewScheduler) run() {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// run one check immediately on startup
	s.renewExpiring()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("[WatchRenewScheduler] Stopped")
			return
		case <-ticker.C:
			s.renewExpiring()
		}
	}
}

func (s *WatchRenewScheduler) renewExpiring() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	queued, err := s.watchService.RenewExpiring(ctx)
	if err != nil {
		logger.Error("[WatchRenewScheduler] Failed to queue renewals: %v", err)
		return
	}
	if queued > 0 {
		logger.Info("[WatchRenewScheduler] Queued %d watch renewals", queued)
	}
}
