package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vidgo/internal/queue"
	"vidgo/internal/testsupport"
)

func TestNewJobBuildsStagePlan(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job, err := store.NewJob(ctx, queue.KindIngestBilibili, 0, map[string]string{"url": "https://www.bilibili.com/video/BV1xx"})
	require.NoError(t, err)
	require.Equal(t, queue.StatusQueued, job.Status)
	require.Len(t, job.Stages, 5)
	require.Equal(t, queue.StageFetch, job.Stages[0].Name)
	require.Equal(t, queue.StageThumbnail, job.Stages[4].Name)
	require.Contains(t, job.ParamsJSON, "BV1xx")
	require.Equal(t, queue.LaneDownload, job.Lane())
}

func TestTranslateOnlyPlanSkipsUpstreamStages(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	job := testsupport.NewJob(t, store, queue.KindTranslateOnly, 0)
	require.Equal(t, queue.StatusSkipped, job.Stage(queue.StageTranscribe).Status)
	require.Equal(t, queue.StatusSkipped, job.Stage(queue.StageOptimize).Status)
	require.Equal(t, queue.StatusQueued, job.Stage(queue.StageTranslate).Status)
	require.Equal(t, queue.StatusQueued, job.Status)

	next := job.NextStage()
	require.NotNil(t, next)
	require.Equal(t, queue.StageTranslate, next.Name)
}

func TestNextQueuedClaimsFIFO(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first := testsupport.NewJob(t, store, queue.KindTranscribe, 0)
	second := testsupport.NewJob(t, store, queue.KindTranscribe, 0)

	claimed, err := store.NextQueued(ctx, queue.KindTranscribe, queue.KindTranslateOnly)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, first.ID, claimed.ID)
	require.Equal(t, queue.StatusRunning, claimed.Status)

	claimed2, err := store.NextQueued(ctx, queue.KindTranscribe, queue.KindTranslateOnly)
	require.NoError(t, err)
	require.NotNil(t, claimed2)
	require.Equal(t, second.ID, claimed2.ID)

	claimed3, err := store.NextQueued(ctx, queue.KindTranscribe, queue.KindTranslateOnly)
	require.NoError(t, err)
	require.Nil(t, claimed3)
}

func TestNextQueuedFiltersByKind(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewJob(t, store, queue.KindExportBurn, 0)

	claimed, err := store.NextQueued(ctx, queue.KindTranscribe)
	require.NoError(t, err)
	require.Nil(t, claimed)
}

func TestRetryJobRequeuesFailedStages(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, queue.KindTranscribe, 0)
	job.Stage(queue.StagePrepareAudio).Status = queue.StatusCompleted
	job.Stage(queue.StageTranscribe).Status = queue.StatusFailed
	job.Stage(queue.StageTranscribe).LastError = "whisper exited 1"
	job.RecomputeStatus()
	require.NoError(t, store.UpdateJob(ctx, job))
	require.Equal(t, queue.StatusFailed, job.Status)

	retried, err := store.RetryJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, queue.StatusQueued, retried.Status)
	require.Equal(t, queue.StatusCompleted, retried.Stage(queue.StagePrepareAudio).Status)
	require.Equal(t, queue.StatusQueued, retried.Stage(queue.StageTranscribe).Status)
	require.Empty(t, retried.Stage(queue.StageTranscribe).LastError)
}

func TestRetryJobRejectsNonFailed(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := testsupport.NewJob(t, store, queue.KindTranscribe, 0)

	_, err := store.RetryJob(context.Background(), job.ID)
	require.Error(t, err)
}

func TestMarkCanceled(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, queue.KindIngestYouTube, 0)
	job.Stage(queue.StageFetch).Status = queue.StatusCompleted
	job.Stage(queue.StageConvert).Status = queue.StatusRunning
	job.RecomputeStatus()
	require.NoError(t, store.UpdateJob(ctx, job))

	canceled, err := store.MarkCanceled(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, queue.StatusCanceled, canceled.Status)
	require.Equal(t, queue.StatusCompleted, canceled.Stage(queue.StageFetch).Status)
	require.Equal(t, queue.StatusCanceled, canceled.Stage(queue.StageConvert).Status)
	require.Equal(t, queue.StatusCanceled, canceled.Stage(queue.StageThumbnail).Status)
}

func TestResetStuckRunning(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, queue.KindTranscribe, 0)
	job.Stage(queue.StagePrepareAudio).Status = queue.StatusRunning
	job.RecomputeStatus()
	require.NoError(t, store.UpdateJob(ctx, job))

	count, err := store.ResetStuckRunning(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	reloaded, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, queue.StatusQueued, reloaded.Status)
	require.Nil(t, reloaded.LastHeartbeat)
}

func TestReclaimStale(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, queue.KindTranscribe, 0)
	job.Stage(queue.StagePrepareAudio).Status = queue.StatusRunning
	job.RecomputeStatus()
	stale := time.Now().Add(-time.Hour)
	job.LastHeartbeat = &stale
	require.NoError(t, store.UpdateJob(ctx, job))

	count, err := store.ReclaimStale(ctx, time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	reloaded, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, queue.StatusQueued, reloaded.Status)
}

func TestUpsertAssetDedupesByContentKey(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first, existed, err := store.UpsertAsset(ctx, &queue.Asset{
		Kind:        queue.AssetVideo,
		Source:      queue.SourceBilibili,
		ContentKey:  "AABBCCDD",
		DisplayName: "first",
	})
	require.NoError(t, err)
	require.False(t, existed)
	require.Equal(t, "aabbccdd", first.ContentKey)
	require.Equal(t, "unknown", first.RawLang)

	second, existed, err := store.UpsertAsset(ctx, &queue.Asset{
		Kind:        queue.AssetVideo,
		Source:      queue.SourceYouTube,
		ContentKey:  "aabbccdd",
		DisplayName: "second",
	})
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "first", second.DisplayName)
}

func TestUpdateAssetPersistsSubtitlePaths(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	asset := testsupport.NewAsset(t, store, "feedbeef01")
	asset.OriginalSRT = "feedbeef01_zh.srt"
	asset.TranslatedSRT = "feedbeef01_en.srt"
	asset.RawLang = "zh"
	require.NoError(t, store.UpdateAsset(ctx, asset))

	reloaded, err := store.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	require.Equal(t, "feedbeef01_zh.srt", reloaded.OriginalSRT)
	require.Equal(t, "feedbeef01_en.srt", reloaded.TranslatedSRT)
	require.Equal(t, "zh", reloaded.RawLang)
}

func TestSettingsRoundTrip(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	_, ok, err := store.SettingGet(ctx, queue.SettingLLMProvider)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SettingSet(ctx, queue.SettingLLMProvider, "openai"))
	require.NoError(t, store.SettingSet(ctx, queue.SettingLLMProvider, "deepseek"))

	value, ok, err := store.SettingGet(ctx, queue.SettingLLMProvider)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "deepseek", value)

	all, err := store.Settings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, store.SettingDelete(ctx, queue.SettingLLMProvider))
	_, ok, err = store.SettingGet(ctx, queue.SettingLLMProvider)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStatsAndHealth(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewJob(t, store, queue.KindTranscribe, 0)
	job := testsupport.NewJob(t, store, queue.KindExportBurn, 0)
	job.Stage(queue.StageBurn).Status = queue.StatusCompleted
	job.RecomputeStatus()
	require.NoError(t, store.UpdateJob(ctx, job))

	health, err := store.Health(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, health.Total)
	require.Equal(t, 1, health.Queued)
	require.Equal(t, 1, health.Completed)
}

type translationRequest struct {
	TargetLang string `json:"target_lang,omitempty"`
}

func (p translationRequest) TranslateRequested() bool { return p.TargetLang != "" }

func TestTranscribePlanSkipsTranslateWithoutTarget(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	plain, err := store.NewJob(ctx, queue.KindTranscribe, 0, translationRequest{})
	require.NoError(t, err)
	require.Equal(t, queue.StatusSkipped, plain.Stage(queue.StageTranslate).Status)
	require.Equal(t, queue.StatusQueued, plain.Status)

	translated, err := store.NewJob(ctx, queue.KindTranscribe, 0, translationRequest{TargetLang: "zh"})
	require.NoError(t, err)
	require.Equal(t, queue.StatusQueued, translated.Stage(queue.StageTranslate).Status)
}
