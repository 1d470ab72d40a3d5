package history

import (
	"context"
	"time"

	"syscontrol/pkg/logger"
	"syscontrol/pkg/queue"
	"syscontrol/pkg/store/mysql"
)

// ActivitySnapshot aggregates recent backend workload signals for one window.
// A degraded snapshot (history unreachable) carries zero counts and
// Degraded=true so the policy can distinguish "idle" from "unknown".
type ActivitySnapshot struct {
	Window            time.Duration `json:"window"`
	PendingItems      int64         `json:"pending_items"`
	CompletedInWindow int64         `json:"completed_in_window"`
	ActiveConnections int           `json:"active_connections"`
	QueueDepth        *int64        `json:"queue_depth,omitempty"`
	Degraded          bool          `json:"degraded,omitempty"`
}

// Reader queries recent backend activity from the shared datastore and,
// when configured, the queue backend. Strictly read-only: it must never
// mutate the store it reads from.
type Reader struct {
	ds      *mysql.Datastore
	backlog queue.BacklogReader
	timeout time.Duration
}

// NewReader creates a workload history reader. ds may be nil when the
// datastore is unavailable; every query then degrades.
func NewReader(ds *mysql.Datastore, backlog queue.BacklogReader, timeout time.Duration) *Reader {
	if backlog == nil {
		backlog = queue.Unavailable()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Reader{ds: ds, backlog: backlog, timeout: timeout}
}

// RecentActivity returns workload counts for the trailing window. On query
// timeout or connection failure it returns a degraded snapshot instead of an
// error: the control loop keeps operating without history.
func (r *Reader) RecentActivity(ctx context.Context, window time.Duration) ActivitySnapshot {
	snapshot := ActivitySnapshot{Window: window}

	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.ds == nil {
		snapshot.Degraded = true
	} else {
		if err := r.queryWorkItems(queryCtx, window, &snapshot); err != nil {
			logger.WarnCtx(ctx, "workload history query failed, continuing degraded: %v", err)
			snapshot = ActivitySnapshot{Window: window, Degraded: true}
		}
		if stats, err := r.ds.Stats(); err == nil {
			snapshot.ActiveConnections = stats.InUse
		}
	}

	// Queue backlog is independent of the DB query: a degraded history
	// snapshot can still carry a queue depth and vice versa.
	if r.backlog.Available() {
		if depth, ok := r.backlog.Depth(queryCtx); ok {
			snapshot.QueueDepth = &depth
		}
	}

	return snapshot
}

func (r *Reader) queryWorkItems(ctx context.Context, window time.Duration, snapshot *ActivitySnapshot) error {
	since := time.Now().UTC().Add(-window)

	var pending int64
	err := r.ds.DB(ctx).
		Table("work_items").
		Where("status = ?", "pending").
		Count(&pending).Error
	if err != nil {
		return err
	}
	snapshot.PendingItems = pending

	var completed int64
	err = r.ds.DB(ctx).
		Table("work_items").
		Where("status = ? AND completed_at > ?", "completed", since).
		Count(&completed).Error
	if err != nil {
		return err
	}
	snapshot.CompletedInWindow = completed

	return nil
}
