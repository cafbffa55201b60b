package stage

import (
	"log/slog"

	"vidgo/internal/config"
	"vidgo/internal/fetch"
	"vidgo/internal/fetch/bilibili"
	"vidgo/internal/fetch/podcast"
	"vidgo/internal/fetch/youtube"
	"vidgo/internal/queue"
	"vidgo/internal/transcode"
)

// DefaultFetchers builds the registry with every supported platform.
func DefaultFetchers(cfg *config.Config, transcoder *transcode.Transcoder, logger *slog.Logger) *fetch.Registry {
	return fetch.NewRegistry(
		bilibili.New(transcoder, logger),
		youtube.New(cfg.YtdlpBinary(), logger),
		podcast.New(logger),
	)
}

// KindForFetcher maps a fetcher name to its ingest job kind.
func KindForFetcher(name string) (queue.Kind, bool) {
	switch name {
	case "bilibili":
		return queue.KindIngestBilibili, true
	case "youtube":
		return queue.KindIngestYouTube, true
	case "apple_podcast":
		return queue.KindIngestPodcast, true
	}
	return "", false
}
