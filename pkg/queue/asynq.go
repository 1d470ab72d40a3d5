package queue

import (
	"context"

	"syscontrol/pkg/config"
	"syscontrol/pkg/logger"

	"github.com/hibiken/asynq"
)

// AsynqBacklog reads backlog depth from an asynq task queue via its inspector.
type AsynqBacklog struct {
	inspector *asynq.Inspector
	queue     string
}

// NewAsynqBacklog creates an asynq inspector over the shared redis backend.
func NewAsynqBacklog(cfg config.RedisConfig, queueName string) *AsynqBacklog {
	inspector := asynq.NewInspector(asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &AsynqBacklog{inspector: inspector, queue: queueName}
}

func (b *AsynqBacklog) Name() string { return "asynq" }

// Depth returns the pending task count of the configured queue.
// The inspector bounds its own redis round-trips; failures degrade to
// "signal absent".
func (b *AsynqBacklog) Depth(ctx context.Context) (int64, bool) {
	info, err := b.inspector.GetQueueInfo(b.queue)
	if err != nil {
		logger.WarnCtx(ctx, "failed to inspect asynq queue %s: %v", b.queue, err)
		return 0, false
	}
	return int64(info.Pending), true
}

func (b *AsynqBacklog) Available() bool { return true }

func (b *AsynqBacklog) Close() error {
	return b.inspector.Close()
}
