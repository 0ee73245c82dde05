// Package messaging provides message queue adapters.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"inbox_server/core/port/out"
)

// Stream names
const (
	StreamSyncPush   = "sync:push"
	StreamWatchRenew = "sync:watch_renew"
)

// RedisProducer implements out.MessageProducer using Redis Streams.
type RedisProducer struct {
	client *redis.Client
}

// NewRedisProducer creates a new RedisProducer.
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client}
}

// PublishPushSync publishes an incremental sync job triggered by a push
// notification.
func (p *RedisProducer) PublishPushSync(ctx context.Context, job *out.PushSyncJob) error {
	return p.publish(ctx, StreamSyncPush, job)
}

// PublishWatchRenew publishes a watch renewal job.
func (p *RedisProducer) PublishWatchRenew(ctx context.Context, job *out.WatchRenewJob) error {
	return p.publish(ctx, StreamWatchRenew, job)
}

// publish marshals the job and appends it to the stream.
func (p *RedisProducer) publish(ctx context.Context, stream string, job interface{}) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}

	return nil
}

var _ out.MessageProducer = (*RedisProducer)(nil)
