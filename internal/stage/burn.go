package stage

import (
	"context"
	"path/filepath"

	"vidgo/internal/artifactstore"
	"vidgo/internal/export"
	"vidgo/internal/queue"
	"vidgo/internal/services"
	"vidgo/internal/workflow"
)

// Burn renders the asset's subtitle tracks into a hard-subbed export.
func (p *Pipeline) Burn(ctx context.Context, sc *workflow.StageContext) error {
	if sc.Asset == nil {
		return services.Wrap(services.ErrValidation, "stage", queue.StageBurn, "job has no asset", nil)
	}
	if sc.Asset.Kind != queue.AssetVideo {
		return services.Wrap(services.ErrValidation, "stage", queue.StageBurn, "burn-in needs a video asset", nil)
	}
	var params ExportParams
	if err := decodeParams(sc.Job, queue.StageBurn, &params); err != nil {
		return err
	}

	subtitleType := export.SubtitleType(params.SubtitleType)
	if params.SubtitleType == "" {
		subtitleType = export.SubtitleRaw
	}

	media, err := p.mediaPath(sc.Asset)
	if err != nil {
		return err
	}
	outDir, err := p.artifacts.Dir(artifactstore.ClassExport)
	if err != nil {
		return err
	}

	req := export.Request{
		Video:        media,
		Style:        export.StyleFromConfig(p.cfg),
		SubtitleType: subtitleType,
		OutDir:       outDir,
		OnProgress:   func(fraction float64) { sc.OnProgress(fraction * 100) },
	}
	if sc.Asset.OriginalSRT != "" {
		if req.RawSRT, err = p.artifacts.Path(artifactstore.ClassSubtitle, sc.Asset.OriginalSRT); err != nil {
			return err
		}
	}
	if sc.Asset.TranslatedSRT != "" {
		if req.TranslatedSRT, err = p.artifacts.Path(artifactstore.ClassSubtitle, sc.Asset.TranslatedSRT); err != nil {
			return err
		}
	}

	out, err := p.renderer.Render(ctx, req)
	if err != nil {
		return err
	}
	sc.OnStatus("exported " + filepath.Base(out))
	return nil
}
