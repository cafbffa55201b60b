package stage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"vidgo/internal/artifactstore"
	"vidgo/internal/fetch"
	"vidgo/internal/language"
	"vidgo/internal/logging"
	"vidgo/internal/queue"
	"vidgo/internal/services"
	"vidgo/internal/workflow"
)

// Fetch downloads the source media, publishes it into the artifact store,
// and creates (or dedups into) one asset per downloaded part. The first
// asset becomes the job's primary asset.
func (p *Pipeline) Fetch(ctx context.Context, sc *workflow.StageContext) error {
	var params IngestParams
	if err := decodeParams(sc.Job, queue.StageFetch, &params); err != nil {
		return err
	}
	if strings.TrimSpace(params.URL) == "" {
		return services.Wrap(services.ErrValidation, "stage", queue.StageFetch, "job has no source url", nil)
	}
	fetcher, err := p.fetchers.Lookup(params.URL)
	if err != nil {
		return err
	}

	dir := p.workDir(sc.Job)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrUnavailable, "stage", queue.StageFetch, "create work dir", err)
	}
	defer os.RemoveAll(dir)

	sc.OnStatus("downloading from " + fetcher.Name())
	results, err := fetcher.Fetch(ctx, params.URL, fetch.Params{
		WorkDir:    dir,
		UserAgent:  p.cfg.Fetch.UserAgent,
		Credential: params.Credential,
		PartIndex:  params.PartIndex,
		OnProgress: func(fraction float64) { sc.OnProgress(fraction * 90) },
	})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return services.Wrap(services.ErrNotFound, "stage", queue.StageFetch, "source yielded no media", nil)
	}

	params.AssetIDs = params.AssetIDs[:0]
	for i, res := range results {
		kind := queue.AssetVideo
		if res.Kind == fetch.KindAudio {
			kind = queue.AssetAudio
		}
		put, err := p.artifacts.PutFile(classFor(kind), res.WorkFile)
		if err != nil {
			return err
		}

		name := strings.TrimSpace(res.Title)
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(res.WorkFile), filepath.Ext(res.WorkFile))
		}
		asset, created, err := sc.Store.UpsertAsset(ctx, &queue.Asset{
			Kind:         kind,
			DisplayName:  name,
			Source:       sourceFor(sc.Job.Kind),
			ContentKey:   put.Key,
			ContainerExt: strings.ToLower(filepath.Ext(res.WorkFile)),
			DurationMS:   int64(res.DurationS * 1000),
			RawLang:      "unknown",
		})
		if err != nil {
			return err
		}
		if !created {
			sc.Log.Info("media already ingested, reusing asset",
				logging.String("content_key", put.Key),
				logging.Int64("asset_id", asset.ID))
		}

		params.AssetIDs = append(params.AssetIDs, asset.ID)
		if res.ThumbnailURL != "" {
			if params.Thumbnails == nil {
				params.Thumbnails = make(map[string]string)
			}
			params.Thumbnails[asset.ContentKey] = res.ThumbnailURL
		}
		if i == 0 {
			sc.Job.AssetID = asset.ID
		}
		sc.OnProgress(90 + float64(i+1)/float64(len(results))*10)
	}
	return storeParams(sc.Job, queue.StageFetch, &params)
}

// Convert re-encodes video assets whose codecs cannot be stream-copied,
// fills in probed dimensions and duration, and cuts the HLS rendition.
func (p *Pipeline) Convert(ctx context.Context, sc *workflow.StageContext) error {
	var params IngestParams
	if err := decodeParams(sc.Job, queue.StageConvert, &params); err != nil {
		return err
	}
	assets, err := p.ingestAssets(ctx, sc, &params)
	if err != nil {
		return err
	}

	dir := p.workDir(sc.Job)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrUnavailable, "stage", queue.StageConvert, "create work dir", err)
	}
	defer os.RemoveAll(dir)

	span := 100 / float64(len(assets))
	for i, asset := range assets {
		if err := p.convertAsset(ctx, sc, &params, asset, dir, float64(i)*span, span); err != nil {
			return err
		}
	}
	return storeParams(sc.Job, queue.StageConvert, &params)
}

func (p *Pipeline) convertAsset(ctx context.Context, sc *workflow.StageContext, params *IngestParams, asset *queue.Asset, dir string, base, span float64) error {
	media, err := p.mediaPath(asset)
	if err != nil {
		return err
	}

	if asset.Kind == queue.AssetVideo {
		out := filepath.Join(dir, asset.ContentKey+"_compat.mp4")
		converted, err := p.transcoder.ConvertForCompat(ctx, media, out, func(fraction float64) {
			sc.OnProgress(base + fraction*span*0.7)
		})
		if err != nil {
			return err
		}
		if converted {
			put, err := p.artifacts.PutFile(artifactstore.ClassVideo, out)
			if err != nil {
				return err
			}
			if put.Key != asset.ContentKey {
				if url, ok := params.Thumbnails[asset.ContentKey]; ok {
					delete(params.Thumbnails, asset.ContentKey)
					params.Thumbnails[put.Key] = url
				}
				if err := p.artifacts.DeleteAll(asset.ContentKey); err != nil {
					sc.Log.Warn("removing superseded source failed",
						logging.String("content_key", asset.ContentKey),
						logging.Error(err))
				}
				asset.ContentKey = put.Key
			}
			asset.ContainerExt = ".mp4"
			if media, err = p.mediaPath(asset); err != nil {
				return err
			}
		}

		probe, err := p.transcoder.Probe(ctx, media)
		if err != nil {
			return err
		}
		asset.Width, asset.Height = probe.Dimensions()
		if d := probe.DurationSeconds(); d > 0 {
			asset.DurationMS = int64(d * 1000)
		}
		if language.ToISO2(asset.RawLang) == "" {
			if tagged := probe.Language(); tagged != "" {
				asset.RawLang = tagged
			}
		}

		sc.OnStatus("cutting hls rendition")
		hlsDir, err := p.artifacts.HLSDir(asset.ContentKey)
		if err != nil {
			return err
		}
		if err := p.transcoder.SegmentHLS(ctx, media, hlsDir); err != nil {
			return err
		}
	} else {
		probe, err := p.transcoder.Probe(ctx, media)
		if err != nil {
			return err
		}
		if asset.DurationMS == 0 {
			asset.DurationMS = int64(probe.DurationSeconds() * 1000)
		}
		if language.ToISO2(asset.RawLang) == "" {
			if tagged := probe.Language(); tagged != "" {
				asset.RawLang = tagged
			}
		}
	}

	sc.OnProgress(base + span)
	return sc.Store.UpdateAsset(ctx, asset)
}

// ExtractAudio pulls the audio track out of each video asset into
// saved_audio. Audio assets already are their own audio and are skipped.
func (p *Pipeline) ExtractAudio(ctx context.Context, sc *workflow.StageContext) error {
	var params IngestParams
	if err := decodeParams(sc.Job, queue.StageExtractAudio, &params); err != nil {
		return err
	}
	assets, err := p.ingestAssets(ctx, sc, &params)
	if err != nil {
		return err
	}

	dir := p.workDir(sc.Job)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrUnavailable, "stage", queue.StageExtractAudio, "create work dir", err)
	}
	defer os.RemoveAll(dir)

	for i, asset := range assets {
		if asset.Kind != queue.AssetVideo {
			continue
		}
		media, err := p.mediaPath(asset)
		if err != nil {
			return err
		}
		out, err := p.transcoder.ExtractAudio(ctx, media, dir, p.cfg.Transcode.PreserveAudio)
		if err != nil {
			if services.Classification(err) == services.ClassInputInvalid {
				sc.Log.Warn("video has no audio stream, skipping extraction",
					logging.String("content_key", asset.ContentKey))
				continue
			}
			return err
		}
		data, err := os.ReadFile(out)
		if err != nil {
			return services.Wrap(services.ErrTransient, "stage", queue.StageExtractAudio, "read extracted audio", err)
		}
		name := artifactstore.DeriveKey(asset.ContentKey, "", filepath.Ext(out))
		if _, err := p.artifacts.WriteDerived(artifactstore.ClassAudio, name, data); err != nil {
			return err
		}
		if params.DerivedAudio == nil {
			params.DerivedAudio = make(map[string]string)
		}
		params.DerivedAudio[asset.ContentKey] = name
		sc.OnProgress(float64(i+1) / float64(len(assets)) * 100)
	}
	return storeParams(sc.Job, queue.StageExtractAudio, &params)
}

// Waveform renders the peak document for each asset from its audio.
func (p *Pipeline) Waveform(ctx context.Context, sc *workflow.StageContext) error {
	var params IngestParams
	if err := decodeParams(sc.Job, queue.StageWaveform, &params); err != nil {
		return err
	}
	assets, err := p.ingestAssets(ctx, sc, &params)
	if err != nil {
		return err
	}

	for i, asset := range assets {
		audio, err := p.audioSource(asset, &params)
		if err != nil {
			return err
		}
		name := artifactstore.DeriveKey(asset.ContentKey, "", ".json")
		out, err := p.artifacts.Path(artifactstore.ClassWaveform, name)
		if err != nil {
			return err
		}
		if err := p.transcoder.GenerateWaveform(ctx, audio, out, p.cfg.Waveform.SamplesPerSecond); err != nil {
			return err
		}
		asset.WaveformKey = name
		if err := sc.Store.UpdateAsset(ctx, asset); err != nil {
			return err
		}
		sc.OnProgress(float64(i+1) / float64(len(assets)) * 100)
	}
	return nil
}

// audioSource picks the cheapest decodable audio for an asset: the saved
// audio itself, the track extracted from the video, or the video container
// as a last resort.
func (p *Pipeline) audioSource(asset *queue.Asset, params *IngestParams) (string, error) {
	if asset.Kind == queue.AssetAudio {
		return p.mediaPath(asset)
	}
	if name, ok := params.DerivedAudio[asset.ContentKey]; ok && p.artifacts.Exists(artifactstore.ClassAudio, name) {
		return p.artifacts.Path(artifactstore.ClassAudio, name)
	}
	return p.mediaPath(asset)
}

// Thumbnail ingests the platform cover when the source published one and
// falls back to grabbing a frame for video assets.
func (p *Pipeline) Thumbnail(ctx context.Context, sc *workflow.StageContext) error {
	var params IngestParams
	if err := decodeParams(sc.Job, queue.StageThumbnail, &params); err != nil {
		return err
	}
	assets, err := p.ingestAssets(ctx, sc, &params)
	if err != nil {
		return err
	}

	for i, asset := range assets {
		name := artifactstore.DeriveKey(asset.ContentKey, "", ".jpg")
		out, err := p.artifacts.Path(artifactstore.ClassThumbnail, name)
		if err != nil {
			return err
		}
		switch url := params.Thumbnails[asset.ContentKey]; {
		case url != "":
			if err := p.transcoder.IngestRemoteThumbnail(ctx, url, out); err != nil {
				if asset.Kind != queue.AssetVideo {
					return err
				}
				sc.Log.Warn("remote thumbnail failed, grabbing a frame", logging.Error(err))
				if err := p.grabFrame(ctx, asset, out); err != nil {
					return err
				}
			}
		case asset.Kind == queue.AssetVideo:
			if err := p.grabFrame(ctx, asset, out); err != nil {
				return err
			}
		default:
			sc.Log.Info("audio asset without a cover, skipping thumbnail",
				logging.String("content_key", asset.ContentKey))
			continue
		}
		asset.ThumbnailKey = name
		if err := sc.Store.UpdateAsset(ctx, asset); err != nil {
			return err
		}
		sc.OnProgress(float64(i+1) / float64(len(assets)) * 100)
	}
	return nil
}

func (p *Pipeline) grabFrame(ctx context.Context, asset *queue.Asset, out string) error {
	media, err := p.mediaPath(asset)
	if err != nil {
		return err
	}
	at := 1.0
	if asset.DurationMS > 0 {
		if early := float64(asset.DurationMS) / 1000 * 0.1; early < at {
			at = early
		}
	}
	return p.transcoder.GenerateThumbnail(ctx, media, at, out)
}
