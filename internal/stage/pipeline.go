package stage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"vidgo/internal/artifactstore"
	"vidgo/internal/config"
	"vidgo/internal/export"
	"vidgo/internal/fetch"
	"vidgo/internal/logging"
	"vidgo/internal/queue"
	"vidgo/internal/services"
	"vidgo/internal/transcode"
	"vidgo/internal/transcribe"
	"vidgo/internal/workflow"
)

// PipelineDeps bundles the components the stage functions drive.
type PipelineDeps struct {
	Config     *config.Config
	Store      *queue.Store
	Artifacts  *artifactstore.Store
	Fetchers   *fetch.Registry
	Transcoder *transcode.Transcoder
	Engines    *transcribe.Selector
	Renderer   *export.Renderer
	Logger     *slog.Logger
}

// Pipeline implements every stage name the queue plans.
type Pipeline struct {
	cfg        *config.Config
	store      *queue.Store
	artifacts  *artifactstore.Store
	fetchers   *fetch.Registry
	transcoder *transcode.Transcoder
	engines    *transcribe.Selector
	renderer   *export.Renderer
	log        *slog.Logger
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &Pipeline{
		cfg:        deps.Config,
		store:      deps.Store,
		artifacts:  deps.Artifacts,
		fetchers:   deps.Fetchers,
		transcoder: deps.Transcoder,
		engines:    deps.Engines,
		renderer:   deps.Renderer,
		log:        log,
	}
}

// Register wires every stage function into the manager under its queue
// stage name.
func (p *Pipeline) Register(m *workflow.Manager) {
	m.RegisterStage(queue.StageFetch, p.Fetch)
	m.RegisterStage(queue.StageConvert, p.Convert)
	m.RegisterStage(queue.StageExtractAudio, p.ExtractAudio)
	m.RegisterStage(queue.StageWaveform, p.Waveform)
	m.RegisterStage(queue.StageThumbnail, p.Thumbnail)
	m.RegisterStage(queue.StagePrepareAudio, p.PrepareAudio)
	m.RegisterStage(queue.StageTranscribe, p.Transcribe)
	m.RegisterStage(queue.StageOptimize, p.Optimize)
	m.RegisterStage(queue.StageTranslate, p.Translate)
	m.RegisterStage(queue.StageBurn, p.Burn)
}

func classFor(kind queue.AssetKind) artifactstore.Class {
	if kind == queue.AssetAudio {
		return artifactstore.ClassAudio
	}
	return artifactstore.ClassVideo
}

func sourceFor(kind queue.Kind) queue.Source {
	switch kind {
	case queue.KindIngestBilibili:
		return queue.SourceBilibili
	case queue.KindIngestYouTube:
		return queue.SourceYouTube
	case queue.KindIngestPodcast:
		return queue.SourcePodcast
	}
	return queue.SourceUpload
}

// mediaPath resolves the saved media file for an asset and verifies it is
// still published.
func (p *Pipeline) mediaPath(asset *queue.Asset) (string, error) {
	name := asset.ContentKey + asset.ContainerExt
	class := classFor(asset.Kind)
	path, err := p.artifacts.Path(class, name)
	if err != nil {
		return "", err
	}
	if !p.artifacts.Exists(class, name) {
		return "", services.Wrap(services.ErrNotFound, "stage", "media",
			fmt.Sprintf("artifact %s missing from store", name), nil)
	}
	return path, nil
}

func (p *Pipeline) workDir(job *queue.Job) string {
	return filepath.Join(p.cfg.Paths.WorkDir, fmt.Sprintf("job-%d", job.ID))
}

// ingestAssets loads the assets an ingest pipeline stage operates on. The
// fetch stage records every created asset id in the params; assets removed
// since then are skipped with a warning rather than failing the batch.
func (p *Pipeline) ingestAssets(ctx context.Context, sc *workflow.StageContext, params *IngestParams) ([]*queue.Asset, error) {
	if len(params.AssetIDs) == 0 {
		if sc.Asset == nil {
			return nil, services.Wrap(services.ErrValidation, "stage", "ingest", "job has no assets to process", nil)
		}
		return []*queue.Asset{sc.Asset}, nil
	}
	assets := make([]*queue.Asset, 0, len(params.AssetIDs))
	for _, id := range params.AssetIDs {
		asset, err := sc.Store.GetAsset(ctx, id)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			sc.Log.Warn("asset removed mid-pipeline", logging.Int64("asset_id", id))
			continue
		}
		assets = append(assets, asset)
	}
	if len(assets) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "stage", "ingest", "asset_gone", nil)
	}
	return assets, nil
}
