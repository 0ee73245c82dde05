package bootstrap

import (
	"context"
	"os"
	"sync"

	"github.com/goccy/go-json"

	"inbox_server/adapter/in/worker"
	"inbox_server/adapter/out/messaging"
	"inbox_server/config"
	"inbox_server/pkg/logger"

	"github.com/rs/zerolog"
)

type Worker struct {
	pool      *worker.Pool
	consumer  *messaging.Consumer
	scheduler *worker.WatchRenewScheduler
	deps      *Dependencies
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	zlog      zerolog.Logger
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	syncProcessor := worker.NewSyncProcessor(deps.SyncService)
	watchProcessor := worker.NewWatchProcessor(deps.WatchService)
	handler := worker.NewHandler(syncProcessor, watchProcessor)

	poolConfig := worker.DefaultPoolConfig()
	if cfg.WorkerMin > 0 {
		poolConfig.MinWorkers = cfg.WorkerMin
	}
	if cfg.WorkerMax > 0 {
		poolConfig.MaxWorkers = cfg.WorkerMax
	}
	if cfg.WorkerQueueSize > 0 {
		poolConfig.QueueSize = cfg.WorkerQueueSize
	}

	pool := worker.NewPool(handler, poolConfig, zlog)

	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		pool:   pool,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		zlog:   zlog,
	}

	if cfg.WatchRenewEnabled {
		w.scheduler = worker.NewWatchRenewScheduler(deps.WatchService, cfg.WatchRenewInterval)
	}

	if deps.Redis != nil {
		streams := []string{
			messaging.StreamSyncPush,
			messaging.StreamWatchRenew,
		}
		w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
			Group:      cfg.ConsumerGroup,
			Consumer:   cfg.WorkerConsumer,
			Streams:    streams,
			Handler:    &streamHandler{worker: w},
			Logger:     zlog,
			MaxRetries: cfg.ConsumerMaxRetries,
		})
		logger.Info("Redis Stream Consumer configured for %d streams", len(streams))
	} else {
		logger.Warn("Redis not available, worker will only process direct submissions")
	}

	return w, cleanup, nil
}

// streamHandler adapts Redis Stream messages to the worker pool.
type streamHandler struct {
	worker *Worker
}

func (h *streamHandler) Handle(ctx context.Context, stream string, data []byte) error {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.Error("[StreamHandler] Failed to parse payload from %s: %v", stream, err)
		return err
	}

	jobType := streamToJobType(stream)
	msg := worker.NewMessage(jobType, payload)

	if !h.worker.pool.Submit(msg) {
		logger.Error("[StreamHandler] Failed to submit job to pool: %s", jobType)
	}
	return nil
}

func streamToJobType(stream string) string {
	switch stream {
	case messaging.StreamSyncPush:
		return worker.JobSyncPush
	case messaging.StreamWatchRenew:
		return worker.JobWatchRenew
	default:
		return stream
	}
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pool.Start()
	}()

	if w.consumer != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.zlog.Info().Msg("Starting Redis Stream Consumer...")
			if err := w.consumer.Run(w.ctx); err != nil && err != context.Canceled {
				w.zlog.Error().Err(err).Msg("Redis Stream Consumer error")
			}
		}()
	}

	if w.scheduler != nil {
		w.scheduler.Start()
		w.zlog.Info().Msg("Started Watch Renew Scheduler")
	}

	<-w.ctx.Done()
}

func (w *Worker) Stop() {
	w.cancel()

	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	w.pool.Stop()
	w.wg.Wait()
}

func (w *Worker) Submit(msg *worker.Message) bool {
	if msg.IsPriority() {
		return w.pool.SubmitPriority(msg)
	}
	return w.pool.Submit(msg)
}

func (w *Worker) GetMetrics() worker.PoolMetrics {
	return w.pool.GetMetrics()
}

func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}
