package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidgo/internal/logging"
	"vidgo/internal/queue"
	"vidgo/internal/services"
)

// processJob drives a claimed job through its remaining stages in order.
// The job stays in running status until the last stage settles so no other
// lane worker can claim it mid-flight.
func (m *Manager) processJob(ctx context.Context, lane queue.Lane, logger *slog.Logger, job *queue.Job) error {
	jobCtx, cancelJob := context.WithCancel(ctx)
	m.trackJob(job.ID, cancelJob)
	defer func() {
		cancelJob()
		m.untrackJob(job.ID)
	}()

	logger = logger.With(
		logging.Int64("job_id", job.ID),
		logging.String("kind", string(job.Kind)))

	for {
		fresh, err := m.store.GetJob(ctx, job.ID)
		if err != nil {
			logger.Error("reloading job failed", logging.Error(err))
			return err
		}
		if fresh == nil {
			logger.Warn("job disappeared mid-run")
			return nil
		}
		job = fresh
		if job.Status == queue.StatusCanceled {
			return nil
		}
		stage := job.NextStage()
		if stage == nil {
			break
		}
		if err := m.runStage(ctx, jobCtx, lane, logger, job, stage); err != nil {
			if ctx.Err() != nil {
				// Daemon shutdown; startup reset requeues the stage.
				return err
			}
			break
		}
	}
	return m.finalizeJob(ctx, job.ID, logger)
}

func (m *Manager) finalizeJob(ctx context.Context, jobID int64, logger *slog.Logger) error {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil || job == nil {
		return err
	}
	job.RecomputeStatus()
	job.LastHeartbeat = nil
	if err := m.store.UpdateJob(ctx, job); err != nil {
		logger.Error("persisting final job status failed", logging.Error(err))
		return err
	}
	logger.Info("job settled", logging.String("status", string(job.Status)))
	return nil
}

// runStage executes one stage with heartbeat, timeout, and transient
// retries. Terminal failures are persisted before returning the error.
// parent is the lane context; jobCtx is additionally canceled by Cancel.
func (m *Manager) runStage(parent, ctx context.Context, lane queue.Lane, logger *slog.Logger, job *queue.Job, stage *queue.StageState) error {
	for {
		requestID := uuid.NewString()
		stageLogger := logger.With(
			logging.String("stage", stage.Name),
			logging.String("request_id", requestID))

		now := time.Now().UTC()
		stage.Status = queue.StatusRunning
		stage.Attempts++
		stage.Progress = 0
		stage.LastError = ""
		stage.StartedAt = &now
		stage.FinishedAt = nil
		job.Status = queue.StatusRunning
		job.LastHeartbeat = &now
		if err := m.store.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("persist stage start: %w", err)
		}

		stageLogger.Info("stage started", logging.Int("attempt", stage.Attempts))
		start := time.Now()
		err := m.executeStage(ctx, lane, stageLogger, job, stage, requestID)
		duration := time.Since(start)

		if err == nil {
			finished := time.Now().UTC()
			stage.Status = queue.StatusCompleted
			stage.Progress = 100
			stage.FinishedAt = &finished
			if persistErr := m.store.UpdateJob(ctx, job); persistErr != nil {
				return fmt.Errorf("persist stage result: %w", persistErr)
			}
			stageLogger.Info("stage completed", logging.Duration("duration", duration))
			return nil
		}

		class := services.Classification(err)
		if class == services.ClassCanceled {
			if parent.Err() != nil {
				// Shutdown, not a user cancel; leave the stage running so
				// the startup reset requeues it.
				return err
			}
			return m.recordCancellation(ctx, job, stage, err)
		}
		if services.IsRetryable(err) && stage.Attempts < m.maxAttempts {
			backoff := m.backoffBase << (stage.Attempts - 1)
			stageLogger.Warn("stage failed, retrying",
				logging.Error(err),
				logging.Int("attempt", stage.Attempts),
				logging.Duration("backoff", backoff))
			m.wait(ctx, backoff)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		finished := time.Now().UTC()
		stage.Status = queue.StatusFailed
		stage.FinishedAt = &finished
		stage.LastError = stageErrorMessage(err, class, requestID)
		job.ErrorMessage = stage.LastError
		job.RecomputeStatus()
		job.LastHeartbeat = nil
		if persistErr := m.store.UpdateJob(ctx, job); persistErr != nil {
			stageLogger.Error("persisting stage failure failed", logging.Error(persistErr))
		}
		stageLogger.Error("stage failed",
			logging.Error(err),
			logging.String("class", class),
			logging.Duration("duration", duration))
		return err
	}
}

// executeStage runs the stage function with its timeout, context
// annotations, and the heartbeat loop.
func (m *Manager) executeStage(ctx context.Context, lane queue.Lane, stageLogger *slog.Logger, job *queue.Job, stage *queue.StageState, requestID string) error {
	stageCtx, cancel := context.WithTimeout(ctx, m.stageTimeout(stage.Name))
	defer cancel()
	stageCtx = services.WithJobID(stageCtx, job.ID)
	stageCtx = services.WithStage(stageCtx, stage.Name)
	stageCtx = services.WithLane(stageCtx, string(lane))
	stageCtx = services.WithRequestID(stageCtx, requestID)

	var asset *queue.Asset
	if job.AssetID != 0 {
		var err error
		asset, err = m.store.GetAsset(stageCtx, job.AssetID)
		if err != nil {
			return err
		}
		if asset == nil {
			return services.Wrap(services.ErrNotFound, "workflow", stage.Name, "asset_gone", nil)
		}
	}

	hbCtx, hbCancel := context.WithCancel(stageCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go func() {
		defer hbWG.Done()
		m.heartbeat.Run(hbCtx, job.ID)
	}()
	defer func() {
		hbCancel()
		hbWG.Wait()
	}()

	fn, ok := m.stages[stage.Name]
	if !ok {
		return services.Wrap(services.ErrValidation, "workflow", stage.Name, "no stage function registered", nil)
	}

	var progressMu sync.Mutex
	sc := &StageContext{
		Job:   job,
		Asset: asset,
		Store: m.store,
		Log:   stageLogger,
		OnProgress: func(percent float64) {
			progressMu.Lock()
			defer progressMu.Unlock()
			if percent < 0 {
				percent = 0
			}
			if percent > 100 {
				percent = 100
			}
			stage.Progress = percent
			if err := m.store.UpdateJob(stageCtx, job); err != nil {
				stageLogger.Debug("progress persist failed", logging.Error(err))
			}
		},
		OnStatus: func(message string) {
			progressMu.Lock()
			defer progressMu.Unlock()
			stage.Message = message
			if err := m.store.UpdateJob(stageCtx, job); err != nil {
				stageLogger.Debug("status persist failed", logging.Error(err))
			}
		},
	}

	err := fn(stageCtx, sc)
	if err != nil && stageCtx.Err() == context.DeadlineExceeded {
		return services.Wrap(services.ErrTimeout, "workflow", stage.Name,
			fmt.Sprintf("stage exceeded %s", m.stageTimeout(stage.Name)), err)
	}
	return err
}

// recordCancellation persists the canceled stage unless Cancel already
// marked the whole job, in which case the store state wins.
func (m *Manager) recordCancellation(ctx context.Context, job *queue.Job, stage *queue.StageState, cause error) error {
	fresh, err := m.store.GetJob(context.WithoutCancel(ctx), job.ID)
	if err != nil || fresh == nil {
		return cause
	}
	if fresh.Status == queue.StatusCanceled {
		return cause
	}
	now := time.Now().UTC()
	stage.Status = queue.StatusCanceled
	stage.FinishedAt = &now
	job.RecomputeStatus()
	job.LastHeartbeat = nil
	_ = m.store.UpdateJob(context.WithoutCancel(ctx), job)
	return cause
}

// stageErrorMessage builds the user-facing failure string: classification
// tag, trimmed cause, and the request id for log correlation.
func stageErrorMessage(err error, class, requestID string) string {
	message := err.Error()
	if len(message) > 300 {
		message = message[:300] + "..."
	}
	return fmt.Sprintf("%s: %s [request %s]", class, message, requestID)
}
