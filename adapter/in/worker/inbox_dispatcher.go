package worker

import (
	"context"

	"inbox_server/pkg/logger"

	"github.com/goccy/go-json"
)

type Handler struct {
	syncProcessor  *SyncProcessor
	watchProcessor *WatchProcessor
}

func NewHandler(syncProcessor *SyncProcessor, watchProcessor *WatchProcessor) *Handler {
	return &Handler{
		syncProcessor:  syncProcessor,
		watchProcessor: watchProcessor,
	}
}

func (h *Handler) Process(ctx context.Context, msg *Message) error {
	logger.Debug("Processing message: %s", msg.Type)

	switch msg.Type {
	case JobSyncPush:
		return h.syncProcessor.ProcessPushSync(ctx, msg)
	case JobWatchRenew:
		return h.watchProcessor.ProcessRenew(ctx, msg)
	default:
		logger.Warn("Unknown job type: %s", msg.Type)
		return nil
	}
}

func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
