package transcode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"vidgo/internal/logging"
	"vidgo/internal/services"
)

// SegmentHLS slices a media file into an HLS playlist with stream-copied
// segments. Sources whose codecs cannot be copied are refused; callers run
// ConvertForCompat first.
func (t *Transcoder) SegmentHLS(ctx context.Context, media, dir string) error {
	probe, err := t.Probe(ctx, media)
	if err != nil {
		return err
	}
	if !probe.HLSCompatible() {
		return services.Wrap(services.ErrValidation, "transcode", "segment hls",
			fmt.Sprintf("incompatible_codec: video=%s audio=%s", probe.VideoCodec(), probe.AudioCodec()), nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrUnavailable, "transcode", "segment hls", "create output dir", err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", media,
		"-c", "copy",
		"-f", "hls",
		"-hls_time", fmt.Sprint(t.hlsSegmentSecs),
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(dir, "seg%d.ts"),
		filepath.Join(dir, "index.m3u8"),
	}
	if err := t.runFFmpeg(ctx, "segment hls", args, nil); err != nil {
		return err
	}
	t.log.Debug("hls playlist written",
		logging.String("media", media),
		logging.String("dir", dir))
	return nil
}
