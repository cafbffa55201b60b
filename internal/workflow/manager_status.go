package workflow

import (
	"context"
	"time"

	"vidgo/internal/queue"
)

// StageView is a read-only snapshot of one stage.
type StageView struct {
	Name      string
	Status    queue.Status
	Progress  float64
	Message   string
	LastError string
	Attempts  int
}

// JobView is a read-only snapshot of one job. Views are copies; mutating
// them never touches the store.
type JobView struct {
	ID        int64
	Kind      queue.Kind
	AssetID   int64
	Status    queue.Status
	Error     string
	Stages    []StageView
	CreatedAt time.Time
	UpdatedAt time.Time
}

func viewOf(job *queue.Job) JobView {
	view := JobView{
		ID:        job.ID,
		Kind:      job.Kind,
		AssetID:   job.AssetID,
		Status:    job.Status,
		Error:     job.ErrorMessage,
		Stages:    make([]StageView, 0, len(job.Stages)),
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	for _, stage := range job.Stages {
		view.Stages = append(view.Stages, StageView{
			Name:      stage.Name,
			Status:    stage.Status,
			Progress:  stage.Progress,
			Message:   stage.Message,
			LastError: stage.LastError,
			Attempts:  stage.Attempts,
		})
	}
	return view
}

// Jobs lists all jobs as snapshots, optionally filtered by status.
func (m *Manager) Jobs(ctx context.Context, statuses ...queue.Status) ([]JobView, error) {
	jobs, err := m.store.ListJobs(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, viewOf(job))
	}
	return views, nil
}

// Job returns a snapshot of one job. The second return is false when the
// job does not exist.
func (m *Manager) Job(ctx context.Context, id int64) (JobView, bool, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil || job == nil {
		return JobView{}, false, err
	}
	return viewOf(job), true, nil
}

// Retry moves a failed or canceled job back to queued.
func (m *Manager) Retry(ctx context.Context, id int64) (JobView, error) {
	job, err := m.store.RetryJob(ctx, id)
	if err != nil {
		return JobView{}, err
	}
	return viewOf(job), nil
}

// Cancel aborts the job: the in-flight stage context is canceled so the
// runner kills any child process, and the remaining stages are marked
// canceled in the store.
func (m *Manager) Cancel(ctx context.Context, id int64) (JobView, error) {
	m.mu.Lock()
	cancel := m.active[id]
	m.mu.Unlock()

	job, err := m.store.MarkCanceled(ctx, id)
	if err != nil {
		return JobView{}, err
	}
	if cancel != nil {
		cancel()
	}
	return viewOf(job), nil
}

// Health aggregates job counts by lifecycle state.
func (m *Manager) Health(ctx context.Context) (queue.HealthSummary, error) {
	return m.store.Health(ctx)
}
