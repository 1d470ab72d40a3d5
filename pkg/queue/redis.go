package queue

import (
	"context"

	"syscontrol/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// RedisBacklog reads backlog depth from a redis list.
type RedisBacklog struct {
	client *redis.Client
	key    string
}

// NewRedisBacklog creates a redis list backlog reader.
func NewRedisBacklog(client *redis.Client, key string) *RedisBacklog {
	return &RedisBacklog{client: client, key: key}
}

func (b *RedisBacklog) Name() string { return "redis" }

// Depth returns LLEN of the configured list. A missing key is an empty
// queue (depth 0, ok), a connection failure is "signal absent" (ok=false).
func (b *RedisBacklog) Depth(ctx context.Context) (int64, bool) {
	depth, err := b.client.LLen(ctx, b.key).Result()
	if err != nil {
		logger.WarnCtx(ctx, "failed to read redis backlog %s: %v", b.key, err)
		return 0, false
	}
	return depth, true
}

func (b *RedisBacklog) Available() bool { return true }

// Close is a no-op: the redis client is owned by the application.
func (b *RedisBacklog) Close() error { return nil }
