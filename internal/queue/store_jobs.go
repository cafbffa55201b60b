package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, kind, asset_id, params_json, stages_json, status, error_message, created_at, updated_at, last_heartbeat"

// NewJob inserts a job with the stage plan for its kind and returns the
// stored row.
func (s *Store) NewJob(ctx context.Context, kind Kind, assetID int64, params any) (*Job, error) {
	ctx = ensureContext(ctx)
	if _, ok := kindSet[kind]; !ok {
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}

	paramsJSON := ""
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal job params: %w", err)
		}
		paramsJSON = string(data)
	}

	translate := true
	if kind == KindTranscribe {
		if tp, ok := params.(TranslationParams); ok {
			translate = tp.TranslateRequested()
		}
	}
	stages := PlanStages(kind, translate)
	stagesJSON, err := json.Marshal(stages)
	if err != nil {
		return nil, fmt.Errorf("marshal stage plan: %w", err)
	}

	job := &Job{Kind: kind, AssetID: assetID, ParamsJSON: paramsJSON, Stages: stages}
	status := job.RecomputeStatus()

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (kind, asset_id, params_json, stages_json, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(kind),
		nullableInt64(assetID),
		nullableString(paramsJSON),
		string(stagesJSON),
		string(status),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by identifier. Missing jobs return (nil, nil).
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs filtered by status set, oldest first. With no
// statuses every job is returned.
func (s *Store) ListJobs(ctx context.Context, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// JobsForAsset returns every job referencing an asset, oldest first.
func (s *Store) JobsForAsset(ctx context.Context, assetID int64) ([]*Job, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE asset_id = ? ORDER BY created_at, id`, assetID)
	if err != nil {
		return nil, fmt.Errorf("jobs for asset: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// NextQueued claims the oldest queued job among the given kinds, moving it
// to running atomically. Returns (nil, nil) when the queue is empty.
func (s *Store) NextQueued(ctx context.Context, kinds ...Kind) (*Job, error) {
	ctx = ensureContext(ctx)
	if len(kinds) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(kinds)+1)
	args = append(args, string(StatusQueued))
	for _, kind := range kinds {
		args = append(args, string(kind))
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = ? AND kind IN (` +
		makePlaceholders(len(kinds)) + `) ORDER BY created_at, id LIMIT 1`

	for {
		row := s.db.QueryRowContext(ctx, query, args...)
		job, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("next queued: %w", err)
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		res, err := s.execWithRetry(
			ctx,
			`UPDATE jobs SET status = ?, updated_at = ?, last_heartbeat = ? WHERE id = ? AND status = ?`,
			string(StatusRunning), now, now, job.ID, string(StatusQueued),
		)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			// Another worker claimed it first; look again.
			continue
		}
		return s.GetJob(ctx, job.ID)
	}
}

// UpdateJob persists stage states, status, and error message for a job.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	ctx = ensureContext(ctx)
	if job == nil {
		return errors.New("job is nil")
	}
	stagesJSON, err := json.Marshal(job.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	job.UpdatedAt = time.Now().UTC()
	_, err = s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET asset_id = ?, params_json = ?, stages_json = ?, status = ?,
             error_message = ?, updated_at = ?, last_heartbeat = ?
         WHERE id = ?`,
		nullableInt64(job.AssetID),
		nullableString(job.ParamsJSON),
		string(stagesJSON),
		string(job.Status),
		nullableString(job.ErrorMessage),
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.LastHeartbeat),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes the heartbeat timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// RetryJob moves a failed job back to queued. Failed stages return to
// queued; completed and skipped stages are left untouched.
func (s *Store) RetryJob(ctx context.Context, id int64) (*Job, error) {
	ctx = ensureContext(ctx)
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %d not found", id)
	}
	if job.Status != StatusFailed && job.Status != StatusCanceled {
		return nil, fmt.Errorf("job %d is %s, only failed or canceled jobs can be retried", id, job.Status)
	}
	for i := range job.Stages {
		switch job.Stages[i].Status {
		case StatusFailed, StatusCanceled:
			job.Stages[i].Status = StatusQueued
			job.Stages[i].Progress = 0
			job.Stages[i].LastError = ""
			job.Stages[i].FinishedAt = nil
		}
	}
	job.ErrorMessage = ""
	job.LastHeartbeat = nil
	job.RecomputeStatus()
	if err := s.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	return s.GetJob(ctx, id)
}

// MarkCanceled marks every non-terminal stage canceled and recomputes the
// job status. The orchestrator cancels the running stage context separately.
func (s *Store) MarkCanceled(ctx context.Context, id int64) (*Job, error) {
	ctx = ensureContext(ctx)
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %d not found", id)
	}
	now := time.Now().UTC()
	for i := range job.Stages {
		switch job.Stages[i].Status {
		case StatusQueued, StatusRunning:
			job.Stages[i].Status = StatusCanceled
			job.Stages[i].FinishedAt = &now
		}
	}
	job.LastHeartbeat = nil
	job.RecomputeStatus()
	if err := s.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ResetStuckRunning returns running jobs back to queued, used on daemon
// startup after an unclean shutdown.
func (s *Store) ResetStuckRunning(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	jobs, err := s.ListJobs(ctx, StatusRunning)
	if err != nil {
		return 0, err
	}
	var count int64
	for _, job := range jobs {
		for i := range job.Stages {
			if job.Stages[i].Status == StatusRunning {
				job.Stages[i].Status = StatusQueued
				job.Stages[i].Progress = 0
			}
		}
		job.LastHeartbeat = nil
		job.RecomputeStatus()
		if err := s.UpdateJob(ctx, job); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// ReclaimStale returns running jobs whose heartbeat expired back to queued.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		string(StatusRunning),
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("query stale jobs: %w", err)
	}
	var stale []*Job
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			rows.Close()
			return 0, scanErr
		}
		stale = append(stale, job)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	var count int64
	for _, job := range stale {
		for i := range job.Stages {
			if job.Stages[i].Status == StatusRunning {
				job.Stages[i].Status = StatusQueued
				job.Stages[i].Progress = 0
			}
		}
		job.LastHeartbeat = nil
		job.RecomputeStatus()
		if err := s.UpdateJob(ctx, job); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// RemoveJob deletes a job by identifier.
func (s *Store) RemoveJob(ctx context.Context, id int64) (bool, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes completed jobs.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status = ?`, string(StatusCompleted))
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all jobs.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusQueued:
			health.Queued += count
		case StatusRunning:
			health.Running += count
		case StatusFailed:
			health.Failed += count
		case StatusCompleted:
			health.Completed += count
		case StatusCanceled:
			health.Canceled += count
		}
	}
	return health, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id            int64
		kindStr       string
		assetID       sql.NullInt64
		paramsJSON    sql.NullString
		stagesJSON    string
		statusStr     string
		errorMessage  sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		heartbeatRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&kindStr,
		&assetID,
		&paramsJSON,
		&stagesJSON,
		&statusStr,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		Kind:         Kind(kindStr),
		AssetID:      assetID.Int64,
		ParamsJSON:   paramsJSON.String,
		Status:       Status(statusStr),
		ErrorMessage: errorMessage.String,
	}
	if stagesJSON != "" {
		if err := json.Unmarshal([]byte(stagesJSON), &job.Stages); err != nil {
			return nil, fmt.Errorf("decode stages for job %d: %w", id, err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}
