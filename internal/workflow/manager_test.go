package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vidgo/internal/queue"
	"vidgo/internal/services"
	"vidgo/internal/testsupport"
)

type managerFixture struct {
	manager *Manager
	store   *queue.Store

	mu    sync.Mutex
	calls []string
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	f := &managerFixture{store: store}
	f.manager = NewManager(cfg, store, nil,
		WithPollInterval(10*time.Millisecond),
		WithBackoffBase(time.Millisecond))
	return f
}

func (f *managerFixture) recordStage(name string, fn StageFunc) {
	f.manager.RegisterStage(name, func(ctx context.Context, sc *StageContext) error {
		f.mu.Lock()
		f.calls = append(f.calls, name)
		f.mu.Unlock()
		if fn == nil {
			return nil
		}
		return fn(ctx, sc)
	})
}

func (f *managerFixture) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *managerFixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.manager.Start(context.Background()))
	t.Cleanup(f.manager.Stop)
}

func waitForJobStatus(t *testing.T, store *queue.Store, id int64, status queue.Status) *queue.Job {
	t.Helper()
	var job *queue.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = store.GetJob(context.Background(), id)
		require.NoError(t, err)
		return job != nil && job.Status == status
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestManagerRunsStagesInOrder(t *testing.T) {
	f := newManagerFixture(t)
	for _, name := range []string{
		queue.StagePrepareAudio, queue.StageTranscribe, queue.StageOptimize, queue.StageTranslate,
	} {
		f.recordStage(name, func(_ context.Context, sc *StageContext) error {
			sc.OnProgress(50)
			return nil
		})
	}

	asset := testsupport.NewAsset(t, f.store, "abc123")
	job := testsupport.NewJob(t, f.store, queue.KindTranscribe, asset.ID)
	f.start(t)

	done := waitForJobStatus(t, f.store, job.ID, queue.StatusCompleted)
	require.Equal(t, []string{
		queue.StagePrepareAudio, queue.StageTranscribe, queue.StageOptimize, queue.StageTranslate,
	}, f.recorded())
	for _, stage := range done.Stages {
		require.Equal(t, queue.StatusCompleted, stage.Status)
		require.InDelta(t, 100, stage.Progress, 1e-9)
		require.Equal(t, 1, stage.Attempts)
	}
}

func TestManagerRetriesTransientFailures(t *testing.T) {
	f := newManagerFixture(t)
	var attempts int
	var mu sync.Mutex
	f.recordStage(queue.StageBurn, func(context.Context, *StageContext) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return services.Wrap(services.ErrTransient, "test", "burn", "flaky network", nil)
		}
		return nil
	})

	job := testsupport.NewJob(t, f.store, queue.KindExportBurn, 0)
	f.start(t)

	done := waitForJobStatus(t, f.store, job.ID, queue.StatusCompleted)
	require.Equal(t, 3, done.Stages[0].Attempts)
}

func TestManagerFailsWithoutRetryOnPermanentError(t *testing.T) {
	f := newManagerFixture(t)
	f.recordStage(queue.StageBurn, func(context.Context, *StageContext) error {
		return services.Wrap(services.ErrValidation, "test", "burn", "bad subtitle type", nil)
	})

	job := testsupport.NewJob(t, f.store, queue.KindExportBurn, 0)
	f.start(t)

	done := waitForJobStatus(t, f.store, job.ID, queue.StatusFailed)
	stage := done.Stages[0]
	require.Equal(t, queue.StatusFailed, stage.Status)
	require.Equal(t, 1, stage.Attempts)
	require.Contains(t, stage.LastError, services.ClassInputInvalid)
	require.Contains(t, stage.LastError, "request ")
	require.Equal(t, stage.LastError, done.ErrorMessage)
}

func TestManagerCancelAbortsRunningStage(t *testing.T) {
	f := newManagerFixture(t)
	started := make(chan struct{})
	var once sync.Once
	f.recordStage(queue.StagePrepareAudio, func(ctx context.Context, _ *StageContext) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return services.Wrap(services.ErrCanceled, "test", "prepare", "aborted", ctx.Err())
	})
	f.recordStage(queue.StageTranscribe, nil)
	f.recordStage(queue.StageOptimize, nil)
	f.recordStage(queue.StageTranslate, nil)

	asset := testsupport.NewAsset(t, f.store, "cancelme")
	job := testsupport.NewJob(t, f.store, queue.KindTranscribe, asset.ID)
	f.start(t)

	<-started
	_, err := f.manager.Cancel(context.Background(), job.ID)
	require.NoError(t, err)

	done := waitForJobStatus(t, f.store, job.ID, queue.StatusCanceled)
	for _, stage := range done.Stages {
		require.Equal(t, queue.StatusCanceled, stage.Status)
	}
	require.Equal(t, []string{queue.StagePrepareAudio}, f.recorded())
}

func TestManagerFailsWhenAssetGone(t *testing.T) {
	f := newManagerFixture(t)
	f.recordStage(queue.StagePrepareAudio, nil)
	f.recordStage(queue.StageTranscribe, nil)
	f.recordStage(queue.StageOptimize, nil)
	f.recordStage(queue.StageTranslate, nil)

	asset := testsupport.NewAsset(t, f.store, "ghost")
	job := testsupport.NewJob(t, f.store, queue.KindTranscribe, asset.ID)
	removed, err := f.store.RemoveAsset(context.Background(), asset.ID)
	require.NoError(t, err)
	require.True(t, removed)

	f.start(t)

	done := waitForJobStatus(t, f.store, job.ID, queue.StatusFailed)
	require.Contains(t, done.ErrorMessage, "asset_gone")
	require.Empty(t, f.recorded())
}

func TestManagerSkipsStagesSkippedAtCreation(t *testing.T) {
	f := newManagerFixture(t)
	f.recordStage(queue.StageTranscribe, nil)
	f.recordStage(queue.StageOptimize, nil)
	f.recordStage(queue.StageTranslate, nil)

	asset := testsupport.NewAsset(t, f.store, "translateonly")
	job := testsupport.NewJob(t, f.store, queue.KindTranslateOnly, asset.ID)
	f.start(t)

	done := waitForJobStatus(t, f.store, job.ID, queue.StatusCompleted)
	require.Equal(t, []string{queue.StageTranslate}, f.recorded())
	require.Equal(t, queue.StatusSkipped, done.Stages[0].Status)
	require.Equal(t, queue.StatusSkipped, done.Stages[1].Status)
}

func TestManagerRetryRunsFailedJobAgain(t *testing.T) {
	f := newManagerFixture(t)
	var failFirst = true
	var mu sync.Mutex
	f.recordStage(queue.StageBurn, func(context.Context, *StageContext) error {
		mu.Lock()
		defer mu.Unlock()
		if failFirst {
			failFirst = false
			return services.Wrap(services.ErrPermanent, "test", "burn", "encoder rejected input", nil)
		}
		return nil
	})

	job := testsupport.NewJob(t, f.store, queue.KindExportBurn, 0)
	f.start(t)

	waitForJobStatus(t, f.store, job.ID, queue.StatusFailed)
	view, err := f.manager.Retry(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, queue.StatusQueued, view.Status)

	done := waitForJobStatus(t, f.store, job.ID, queue.StatusCompleted)
	require.Empty(t, done.ErrorMessage)
}

func TestJobViewIsACopy(t *testing.T) {
	f := newManagerFixture(t)
	job := testsupport.NewJob(t, f.store, queue.KindExportBurn, 0)

	view, found, err := f.manager.Job(context.Background(), job.ID)
	require.NoError(t, err)
	require.True(t, found)

	view.Stages[0].Status = queue.StatusFailed
	view.Error = "mutated"

	again, found, err := f.manager.Job(context.Background(), job.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, queue.StatusQueued, again.Stages[0].Status)
	require.Empty(t, again.Error)
}

func TestManagerStartRequiresStages(t *testing.T) {
	f := newManagerFixture(t)
	require.Error(t, f.manager.Start(context.Background()))
}
