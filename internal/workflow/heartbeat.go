package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vidgo/internal/logging"
	"vidgo/internal/queue"
)

// HeartbeatMonitor refreshes job heartbeats while a stage runs and returns
// stale running jobs to the queue.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
}

func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{store: store, logger: logger, interval: interval}
}

// ReclaimStale re-queues running jobs whose heartbeat is older than three
// intervals, which happens after a crash or power loss.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context) {
	cutoff := time.Now().Add(-3 * h.interval)
	reclaimed, err := h.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			h.logger.Warn("stale job reclaim failed", logging.Error(err))
		}
		return
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale jobs", logging.Int64("count", reclaimed))
	}
}

// Run refreshes the heartbeat for one job until the context ends.
func (h *HeartbeatMonitor) Run(ctx context.Context, jobID int64) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, jobID); err != nil && !errors.Is(err, context.Canceled) {
				h.logger.Warn("heartbeat update failed",
					logging.Int64("job_id", jobID),
					logging.Error(err))
			}
		}
	}
}
