// Package export burns subtitle tracks into a video by rendering an ASS
// script and re-encoding with ffmpeg.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"vidgo/internal/config"
	"vidgo/internal/logging"
	"vidgo/internal/media/ffprobe"
	"vidgo/internal/runner"
	"vidgo/internal/services"
	"vidgo/internal/subtitles"
)

// SubtitleType selects which tracks get burned in.
type SubtitleType string

const (
	SubtitleRaw        SubtitleType = "raw"
	SubtitleTranslated SubtitleType = "translated"
	SubtitleBoth       SubtitleType = "both"
)

// Request describes one burn-in export. TranslatedSRT may be empty for the
// raw type; for "both" a missing translated file degrades to raw only.
type Request struct {
	Video         string
	RawSRT        string
	TranslatedSRT string
	Style         Style
	SubtitleType  SubtitleType
	OutDir        string
	OnProgress    func(float64)
}

type Renderer struct {
	ffmpeg  string
	ffprobe string
	log     *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Renderer{
		ffmpeg:  cfg.FFmpegBinary(),
		ffprobe: cfg.FFprobeBinary(),
		log:     logging.NewComponentLogger(logger, "export"),
	}
}

// Render burns the requested tracks into the video and returns the output
// path, <OutDir>/<stem>_burn.mp4. Audio is copied; video is re-encoded at
// the source bitrate so file size stays in the same ballpark.
func (r *Renderer) Render(ctx context.Context, req Request) (string, error) {
	subtitleType := req.SubtitleType
	switch subtitleType {
	case SubtitleRaw, SubtitleTranslated, SubtitleBoth:
	default:
		return "", services.Wrap(services.ErrValidation, "export", "render",
			"unknown subtitle type "+string(subtitleType), nil)
	}

	raw, translated, subtitleType, err := r.loadTracks(req, subtitleType)
	if err != nil {
		return "", err
	}

	probe, err := ffprobe.Inspect(ctx, r.ffprobe, req.Video)
	if err != nil {
		return "", err
	}
	width, height := probe.Dimensions()
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}

	stem := strings.TrimSuffix(filepath.Base(req.Video), filepath.Ext(req.Video))
	script := buildASS(stem, width, height, req.Style, subtitleType, raw, translated)

	assFile, err := os.CreateTemp("", "burn-*.ass")
	if err != nil {
		return "", services.Wrap(services.ErrUnavailable, "export", "render", "create ass file", err)
	}
	assPath := assFile.Name()
	defer os.Remove(assPath)
	if _, err := assFile.WriteString(script); err != nil {
		assFile.Close()
		return "", services.Wrap(services.ErrUnavailable, "export", "render", "write ass file", err)
	}
	if err := assFile.Close(); err != nil {
		return "", services.Wrap(services.ErrUnavailable, "export", "render", "close ass file", err)
	}

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrUnavailable, "export", "render", "create output dir", err)
	}
	out := filepath.Join(req.OutDir, stem+"_burn.mp4")

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", req.Video,
		"-vf", "ass=" + assPath,
		"-c:a", "copy",
	}
	if bitrate := probe.VideoBitRate(); bitrate > 0 {
		args = append(args, "-b:v", strconv.FormatInt(bitrate, 10))
	}
	args = append(args, "-progress", "pipe:1", out)

	r.log.Info("burning subtitles",
		logging.String("video", req.Video),
		logging.String("type", string(subtitleType)),
		logging.String("out", out))

	total := probe.DurationSeconds()
	res, err := runner.Run(ctx, runner.Command{
		Path:   r.ffmpeg,
		Args:   args,
		OnLine: progressSink(total, req.OnProgress),
	})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", services.Wrap(services.ErrExternalTool, "export", "render",
			fmt.Sprintf("ffmpeg exit %d: %s", res.ExitCode, res.StderrTail), nil)
	}
	return out, nil
}

// loadTracks reads the cue lists the requested type needs, degrading
// "both" to raw only when the translated file is missing.
func (r *Renderer) loadTracks(req Request, subtitleType SubtitleType) (raw, translated []subtitles.Cue, _ SubtitleType, err error) {
	if subtitleType != SubtitleTranslated {
		raw, err = subtitles.ReadSRT(req.RawSRT)
		if err != nil {
			return nil, nil, subtitleType, err
		}
	}
	if subtitleType != SubtitleRaw {
		translated, err = subtitles.ReadSRT(req.TranslatedSRT)
		if err != nil {
			if subtitleType != SubtitleBoth {
				return nil, nil, subtitleType, err
			}
			r.log.Warn("translated subtitles missing, exporting raw track only",
				logging.String("path", req.TranslatedSRT),
				logging.Error(err))
			subtitleType = SubtitleRaw
			translated = nil
		}
	}
	return raw, translated, subtitleType, nil
}

// progressSink parses ffmpeg -progress key=value output on stdout.
func progressSink(totalSeconds float64, onProgress func(float64)) func(runner.Stream, string) {
	if onProgress == nil {
		return nil
	}
	return func(stream runner.Stream, line string) {
		if stream != runner.Stdout {
			return
		}
		if value, ok := strings.CutPrefix(line, "out_time_ms="); ok && totalSeconds > 0 {
			micros, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return
			}
			fraction := float64(micros) / 1e6 / totalSeconds
			if fraction > 1 {
				fraction = 1
			}
			onProgress(fraction)
			return
		}
		if strings.TrimSpace(line) == "progress=end" {
			onProgress(1)
		}
	}
}
