package workflow

import (
	"context"
	"errors"
	"time"

	"vidgo/internal/logging"
	"vidgo/internal/queue"
)

// Start requeues stages stranded by an unclean shutdown and launches the
// lane loops. It returns immediately; Stop blocks until the loops drain.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.stages) == 0 {
		m.mu.Unlock()
		return errors.New("no stage functions registered")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	if reset, err := m.store.ResetStuckRunning(runCtx); err != nil {
		m.logger.Warn("reset of stuck jobs failed", logging.Error(err))
	} else if reset > 0 {
		m.logger.Info("requeued jobs from previous run", logging.Int64("count", reset))
	}

	lanes := []queue.Lane{queue.LaneDownload, queue.LaneSubtitle, queue.LaneExport}
	for _, lane := range lanes {
		for i := 0; i < m.laneWorkers(lane); i++ {
			m.wg.Add(1)
			go m.runLane(runCtx, lane)
		}
	}
	return nil
}

// Stop cancels all lane loops and in-flight stages and waits for them.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runLane(ctx context.Context, lane queue.Lane) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String("lane", string(lane)))
	kinds := queue.KindsForLane(lane)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.heartbeat.ReclaimStale(ctx)

		job, err := m.store.NextQueued(ctx, kinds...)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("fetching next job failed", logging.Error(err))
			m.wait(ctx, m.errorRetryInterval)
			continue
		}
		if job == nil {
			m.wait(ctx, m.pollInterval)
			continue
		}

		if err := m.processJob(ctx, lane, logger, job); err != nil && ctx.Err() != nil {
			return
		}
	}
}

func (m *Manager) wait(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
