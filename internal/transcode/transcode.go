package transcode

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/renameio/v2"

	"vidgo/internal/config"
	"vidgo/internal/logging"
	"vidgo/internal/media/ffprobe"
	"vidgo/internal/runner"
	"vidgo/internal/services"
)

// audioTarget describes how to lift one source audio codec out of its
// container without re-encoding.
type audioTarget struct {
	ext   string
	codec string
}

// copyableAudio maps source codecs to the container extension that can hold
// them with a stream copy. Anything else gets re-encoded to mp3.
var copyableAudio = map[string]audioTarget{
	"aac":    {ext: "m4a", codec: "copy"},
	"mp3":    {ext: "mp3", codec: "copy"},
	"opus":   {ext: "opus", codec: "copy"},
	"vorbis": {ext: "ogg", codec: "copy"},
	"flac":   {ext: "flac", codec: "copy"},
}

// Transcoder wraps every ffmpeg invocation the pipeline needs: muxing,
// audio extraction, thumbnails, HLS segmenting, waveform peaks, and
// compatibility re-encodes.
type Transcoder struct {
	ffmpeg           string
	ffprobe          string
	hlsSegmentSecs   int
	audioBitrateKbps int
	audioSampleRate  int
	httpClient       *http.Client
	log              *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) *Transcoder {
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &Transcoder{
		ffmpeg:           cfg.FFmpegBinary(),
		ffprobe:          cfg.FFprobeBinary(),
		hlsSegmentSecs:   cfg.Transcode.HLSSegmentSeconds,
		audioBitrateKbps: cfg.Transcode.AudioBitrateKbps,
		audioSampleRate:  cfg.Transcode.AudioSampleRate,
		httpClient:       http.DefaultClient,
		log:              logging.NewComponentLogger(logger, "transcode"),
	}
	if t.hlsSegmentSecs <= 0 {
		t.hlsSegmentSecs = 10
	}
	if t.audioBitrateKbps <= 0 {
		t.audioBitrateKbps = 192
	}
	if t.audioSampleRate <= 0 {
		t.audioSampleRate = 44100
	}
	return t
}

// threadCount caps ffmpeg's worker threads so a transcode never starves the
// rest of the daemon.
func threadCount() int {
	n := runtime.NumCPU() / 3
	if n < 1 {
		n = 1
	}
	return n
}

// Probe inspects a media file with the configured ffprobe binary.
func (t *Transcoder) Probe(ctx context.Context, path string) (ffprobe.Result, error) {
	return ffprobe.Inspect(ctx, t.ffprobe, path)
}

// Mux combines a video-only and an audio-only file into a single container
// by stream copy; split DASH downloads arrive already encoded.
func (t *Transcoder) Mux(ctx context.Context, video, audio, out string, onProgress func(float64)) error {
	probe, err := t.Probe(ctx, video)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return services.Wrap(services.ErrUnavailable, "transcode", "mux", "create output dir", err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c", "copy",
		"-threads", fmt.Sprint(threadCount()),
		"-progress", "pipe:1",
		out,
	}
	return t.runFFmpeg(ctx, "mux", args, progressSink(probe.DurationSeconds(), onProgress))
}

// ExtractAudio pulls the audio track out of a media file. When preserve is
// set and the codec has a container in copyableAudio the stream is copied
// verbatim; otherwise it is re-encoded to mp3 at the configured bitrate.
// Returns the path of the written file.
func (t *Transcoder) ExtractAudio(ctx context.Context, media, outDir string, preserve bool) (string, error) {
	probe, err := t.Probe(ctx, media)
	if err != nil {
		return "", err
	}
	if !probe.HasAudio() {
		return "", services.Wrap(services.ErrValidation, "transcode", "extract audio", "no audio stream in "+media, nil)
	}

	target := audioTarget{ext: "mp3", codec: "libmp3lame"}
	if preserve {
		if mapped, ok := copyableAudio[probe.AudioCodec()]; ok {
			target = mapped
		}
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrUnavailable, "transcode", "extract audio", "create output dir", err)
	}
	stem := strings.TrimSuffix(filepath.Base(media), filepath.Ext(media))
	out := filepath.Join(outDir, stem+"."+target.ext)

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", media,
		"-vn",
		"-c:a", target.codec,
	}
	if target.codec != "copy" {
		args = append(args,
			"-b:a", fmt.Sprintf("%dk", t.audioBitrateKbps),
			"-ar", fmt.Sprint(t.audioSampleRate),
		)
	}
	args = append(args, out)

	if err := t.runFFmpeg(ctx, "extract audio", args, nil); err != nil {
		return "", err
	}
	t.log.Debug("audio extracted",
		logging.String("codec", target.codec),
		logging.String("out", out))
	return out, nil
}

// PrepareASRAudio downmixes to mono 16 kHz mp3, the shape every speech
// recognizer in the pipeline expects.
func (t *Transcoder) PrepareASRAudio(ctx context.Context, media, out string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return services.Wrap(services.ErrUnavailable, "transcode", "prepare asr audio", "create output dir", err)
	}
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", media,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-b:a", "128k",
		"-c:a", "libmp3lame",
		out,
	}
	return t.runFFmpeg(ctx, "prepare asr audio", args, nil)
}

// GenerateThumbnail grabs a single frame at the given offset.
func (t *Transcoder) GenerateThumbnail(ctx context.Context, media string, atSeconds float64, out string) error {
	if atSeconds < 0 {
		atSeconds = 0
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return services.Wrap(services.ErrUnavailable, "transcode", "thumbnail", "create output dir", err)
	}
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", fmt.Sprintf("%.3f", atSeconds),
		"-i", media,
		"-frames:v", "1",
		"-q:v", "2",
		out,
	}
	return t.runFFmpeg(ctx, "thumbnail", args, nil)
}

// IngestRemoteThumbnail downloads a cover image published by the source
// platform and writes it atomically.
func (t *Transcoder) IngestRemoteThumbnail(ctx context.Context, url, out string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "transcode", "ingest thumbnail", "build request", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "transcode", "ingest thumbnail", "fetch "+url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrUnavailable, "transcode", "ingest thumbnail",
			fmt.Sprintf("fetch %s: status %d", url, resp.StatusCode), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, "transcode", "ingest thumbnail", "read body", err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return services.Wrap(services.ErrUnavailable, "transcode", "ingest thumbnail", "create output dir", err)
	}
	if err := renameio.WriteFile(out, data, 0o644); err != nil {
		return services.Wrap(services.ErrUnavailable, "transcode", "ingest thumbnail", "write "+out, err)
	}
	return nil
}

// ConvertForCompat re-encodes a source into h264/aac when its codecs cannot
// be stream-copied into HLS. Returns false without touching out when the
// source is already compatible.
func (t *Transcoder) ConvertForCompat(ctx context.Context, media, out string, onProgress func(float64)) (bool, error) {
	probe, err := t.Probe(ctx, media)
	if err != nil {
		return false, err
	}
	if probe.HLSCompatible() {
		t.log.Debug("source already compatible, skipping re-encode",
			logging.String("media", media),
			logging.String("video_codec", probe.VideoCodec()),
			logging.String("audio_codec", probe.AudioCodec()))
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return false, services.Wrap(services.ErrUnavailable, "transcode", "convert", "create output dir", err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", media,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", t.audioBitrateKbps),
		"-movflags", "+faststart",
		"-threads", fmt.Sprint(threadCount()),
		"-progress", "pipe:1",
		out,
	}
	if err := t.runFFmpeg(ctx, "convert", args, progressSink(probe.DurationSeconds(), onProgress)); err != nil {
		return false, err
	}
	return true, nil
}

// runFFmpeg executes ffmpeg and turns a non-zero exit into an error carrying
// the stderr tail.
func (t *Transcoder) runFFmpeg(ctx context.Context, operation string, args []string, onLine func(runner.Stream, string)) error {
	res, err := runner.Run(ctx, runner.Command{
		Path:   t.ffmpeg,
		Args:   args,
		OnLine: onLine,
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return services.Wrap(services.ErrExternalTool, "transcode", operation,
			fmt.Sprintf("ffmpeg exited %d: %s", res.ExitCode, res.StderrTail), nil)
	}
	return nil
}
