package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"vidgo/internal/artifactstore"
	"vidgo/internal/language"
	"vidgo/internal/logging"
	"vidgo/internal/queue"
	"vidgo/internal/services"
	"vidgo/internal/services/llm"
	"vidgo/internal/subtitles"
	"vidgo/internal/transcribe"
	"vidgo/internal/workflow"
)

const defaultTargetLang = "zh"

// PrepareAudio downmixes the asset's media to the mono 16 kHz shape the
// recognizers expect and records the scratch path for the transcribe stage.
func (p *Pipeline) PrepareAudio(ctx context.Context, sc *workflow.StageContext) error {
	if sc.Asset == nil {
		return services.Wrap(services.ErrValidation, "stage", queue.StagePrepareAudio, "job has no asset", nil)
	}
	var params SubtitleParams
	if err := decodeParams(sc.Job, queue.StagePrepareAudio, &params); err != nil {
		return err
	}

	media, err := p.mediaPath(sc.Asset)
	if err != nil {
		return err
	}
	out := filepath.Join(p.cfg.Paths.WorkDir, fmt.Sprintf("asr-%d.mp3", sc.Job.ID))
	sc.OnStatus("downmixing audio for recognition")
	if err := p.transcoder.PrepareASRAudio(ctx, media, out); err != nil {
		return err
	}
	params.ASRAudio = out
	return storeParams(sc.Job, queue.StagePrepareAudio, &params)
}

// Transcribe runs the selected speech engine over the prepared audio and
// publishes the word-level SRT.
func (p *Pipeline) Transcribe(ctx context.Context, sc *workflow.StageContext) error {
	if sc.Asset == nil {
		return services.Wrap(services.ErrValidation, "stage", queue.StageTranscribe, "job has no asset", nil)
	}
	var params SubtitleParams
	if err := decodeParams(sc.Job, queue.StageTranscribe, &params); err != nil {
		return err
	}
	if params.ASRAudio == "" {
		return services.Wrap(services.ErrValidation, "stage", queue.StageTranscribe, "no prepared audio recorded, retry the job", nil)
	}
	if _, err := os.Stat(params.ASRAudio); err != nil {
		return services.Wrap(services.ErrValidation, "stage", queue.StageTranscribe, "prepared audio missing, retry the job", err)
	}

	settings, err := sc.Store.Settings(ctx)
	if err != nil {
		return err
	}
	srt, err := p.engines.Transcribe(ctx, settings, transcribe.Request{
		AudioPath:  params.ASRAudio,
		Language:   sc.Asset.RawLang,
		OnStatus:   sc.OnStatus,
		OnProgress: func(fraction float64) { sc.OnProgress(fraction * 100) },
	})
	if err != nil {
		return err
	}

	name := artifactstore.DeriveKey(sc.Asset.ContentKey, "words", ".srt")
	if _, err := p.artifacts.WriteDerived(artifactstore.ClassSubtitle, name, []byte(srt)); err != nil {
		return err
	}
	_ = os.Remove(params.ASRAudio)
	params.ASRAudio = ""
	params.WordsSRT = name
	return storeParams(sc.Job, queue.StageTranscribe, &params)
}

// Optimize reshapes the word transcript into display-sized lines and
// records the result as the asset's original subtitle. Without an LLM
// provider the segmenter degrades to rule-based splitting.
func (p *Pipeline) Optimize(ctx context.Context, sc *workflow.StageContext) error {
	if sc.Asset == nil {
		return services.Wrap(services.ErrValidation, "stage", queue.StageOptimize, "job has no asset", nil)
	}
	var params SubtitleParams
	if err := decodeParams(sc.Job, queue.StageOptimize, &params); err != nil {
		return err
	}
	if params.WordsSRT == "" {
		return services.Wrap(services.ErrValidation, "stage", queue.StageOptimize, "no word transcript recorded", nil)
	}
	src, err := p.artifacts.Path(artifactstore.ClassSubtitle, params.WordsSRT)
	if err != nil {
		return err
	}

	segmenter := subtitles.NewSegmenter(p.llmClient(ctx, sc),
		subtitles.WithSegmenterLogger(sc.Log),
		subtitles.WithSegmenterWorkers(p.cfg.Workers.LLMBatch),
		subtitles.WithSegmenterLimits(
			p.cfg.Subtitles.SegmentThreshold,
			p.cfg.Subtitles.SplitRange,
			p.cfg.Subtitles.MaxDisplay,
			p.cfg.Subtitles.MinDisplay),
		subtitles.WithSegmenterProgress(func(fraction float64) { sc.OnProgress(fraction * 100) }),
	)

	name := artifactstore.DeriveKey(sc.Asset.ContentKey, "", ".srt")
	dst, err := p.artifacts.Path(artifactstore.ClassSubtitle, name)
	if err != nil {
		return err
	}
	if err := segmenter.OptimizeFile(ctx, src, dst); err != nil {
		return err
	}
	sc.Asset.OriginalSRT = name
	return sc.Store.UpdateAsset(ctx, sc.Asset)
}

// Translate produces the bilingual track from the optimized subtitle.
// Unlike optimization there is no degraded mode; a configured LLM provider
// is required.
func (p *Pipeline) Translate(ctx context.Context, sc *workflow.StageContext) error {
	if sc.Asset == nil {
		return services.Wrap(services.ErrValidation, "stage", queue.StageTranslate, "job has no asset", nil)
	}
	if sc.Asset.OriginalSRT == "" {
		return services.Wrap(services.ErrValidation, "stage", queue.StageTranslate, "asset has no optimized subtitle", nil)
	}
	var params SubtitleParams
	if err := decodeParams(sc.Job, queue.StageTranslate, &params); err != nil {
		return err
	}

	llmCfg, err := llm.ConfigFromSettings(ctx, sc.Store)
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			return services.Wrap(services.ErrUnavailable, "stage", queue.StageTranslate, "llm provider not configured", err)
		}
		return err
	}

	target := language.ToISO2(params.TargetLang)
	if target == "" {
		target = defaultTargetLang
	}
	translator := subtitles.NewTranslator(llm.NewClient(llmCfg), sc.Asset.RawLang, target,
		subtitles.WithTranslatorLogger(sc.Log),
		subtitles.WithTranslatorBatch(p.cfg.Subtitles.BatchSize, p.cfg.Subtitles.ContextSize),
		subtitles.WithTranslatorWorkers(p.cfg.Workers.LLMBatch),
		subtitles.WithTerms(params.Terms),
		subtitles.WithTranslatorProgress(func(fraction float64) { sc.OnProgress(fraction * 100) }),
	)

	src, err := p.artifacts.Path(artifactstore.ClassSubtitle, sc.Asset.OriginalSRT)
	if err != nil {
		return err
	}
	name := artifactstore.DeriveKey(sc.Asset.ContentKey, target, ".srt")
	dst, err := p.artifacts.Path(artifactstore.ClassSubtitle, name)
	if err != nil {
		return err
	}
	if err := translator.TranslateFile(ctx, src, dst); err != nil {
		return err
	}
	sc.Asset.TranslatedSRT = name
	return sc.Store.UpdateAsset(ctx, sc.Asset)
}

// llmClient builds a client from the settings table, or nil when no
// provider is configured so callers can fall back.
func (p *Pipeline) llmClient(ctx context.Context, sc *workflow.StageContext) *llm.Client {
	cfg, err := llm.ConfigFromSettings(ctx, sc.Store)
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			sc.Log.Info("llm provider not configured, using rule-based splitting")
		} else {
			sc.Log.Warn("loading llm settings failed", logging.Error(err))
		}
		return nil
	}
	return llm.NewClient(cfg)
}
