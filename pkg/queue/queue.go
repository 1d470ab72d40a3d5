package queue

import (
	"context"
	"fmt"

	"syscontrol/pkg/config"

	"github.com/go-redis/redis/v8"
)

// BacklogReader reports the current depth of an external work queue.
// Depth returns ok=false when the backlog cannot be determined; the caller
// treats that as "queue signal absent", never as depth zero.
type BacklogReader interface {
	// Name identifies the provider for logging.
	Name() string

	// Depth returns the current backlog depth.
	Depth(ctx context.Context) (depth int64, ok bool)

	// Available reports whether a queue backend is configured at all.
	Available() bool

	// Close releases provider resources.
	Close() error
}

// NewBacklogReader creates the configured backlog provider. The provider is
// resolved once at startup; "none" (or a missing redis address) yields the
// unavailable variant, which is a normal mode of operation.
func NewBacklogReader(cfg *config.Config, client *redis.Client) (BacklogReader, error) {
	switch cfg.Queue.Provider {
	case "none":
		return Unavailable(), nil
	case "redis":
		if client == nil {
			return Unavailable(), nil
		}
		return NewRedisBacklog(client, cfg.Queue.Key), nil
	case "asynq":
		if !cfg.Redis.Enabled() {
			return Unavailable(), nil
		}
		return NewAsynqBacklog(cfg.Redis, cfg.Queue.Name), nil
	default:
		return nil, fmt.Errorf("unsupported queue provider: %s", cfg.Queue.Provider)
	}
}

// unavailableBacklog is the no-queue variant.
type unavailableBacklog struct{}

// Unavailable returns the provider used when no queue backend is configured.
func Unavailable() BacklogReader {
	return unavailableBacklog{}
}

func (unavailableBacklog) Name() string                            { return "none" }
func (unavailableBacklog) Depth(ctx context.Context) (int64, bool) { return 0, false }
func (unavailableBacklog) Available() bool                         { return false }
func (unavailableBacklog) Close() error                            { return nil }
