// Package youtube fetches videos by wrapping the yt-dlp binary: metadata
// via --dump-json, media as a merged mp4 with progress parsed from the
// downloader's percent lines.
package youtube

import (
	"context"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"vidgo/internal/fetch"
	"vidgo/internal/logging"
	"vidgo/internal/runner"
	"vidgo/internal/services"
)

var percentPattern = regexp.MustCompile(`\[download\]\s+([\d.]+)%`)

type Client struct {
	binary string
	log    *slog.Logger
}

// New wraps the given yt-dlp binary. An empty path falls back to "yt-dlp"
// on PATH.
func New(binary string, logger *slog.Logger) *Client {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		binary: binary,
		log:    logging.NewComponentLogger(logger, "fetch.youtube"),
	}
}

func (c *Client) Name() string { return "youtube" }

func (c *Client) Matches(raw string) bool {
	return strings.Contains(raw, "youtube.com") || strings.Contains(raw, "youtu.be")
}

func (c *Client) Fetch(ctx context.Context, raw string, params fetch.Params) ([]fetch.IngestResult, error) {
	meta, err := c.metadata(ctx, raw)
	if err != nil {
		return nil, err
	}

	id := meta.Get("id").String()
	if id == "" {
		return nil, services.Wrap(services.ErrPermanent, "youtube", "fetch", "metadata missing video id", nil)
	}
	out := filepath.Join(params.WorkDir, fetch.SanitizeFilename(id, 200)+".mp4")
	if err := c.download(ctx, raw, out, params.OnProgress); err != nil {
		return nil, err
	}

	author := meta.Get("uploader").String()
	if author == "" {
		author = meta.Get("channel").String()
	}
	c.log.Info("video downloaded",
		logging.String("id", id),
		logging.String("file", out))
	return []fetch.IngestResult{{
		Kind:         fetch.KindVideo,
		WorkFile:     out,
		Title:        meta.Get("title").String(),
		Author:       author,
		DurationS:    meta.Get("duration").Float(),
		ThumbnailURL: meta.Get("thumbnail").String(),
		PartIndex:    1,
		PartTotal:    1,
	}}, nil
}

func (c *Client) metadata(ctx context.Context, raw string) (gjson.Result, error) {
	var stdout strings.Builder
	res, err := runner.Run(ctx, runner.Command{
		Path: c.binary,
		Args: []string{"--dump-json", "--no-playlist", raw},
		OnLine: func(stream runner.Stream, line string) {
			if stream == runner.Stdout {
				stdout.WriteString(line)
				stdout.WriteByte('\n')
			}
		},
	})
	if err != nil {
		return gjson.Result{}, err
	}
	if res.ExitCode != 0 {
		return gjson.Result{}, services.Wrap(services.ErrExternalTool, "youtube", "metadata",
			"yt-dlp exited "+strconv.Itoa(res.ExitCode)+": "+res.StderrTail, nil)
	}
	payload := gjson.Parse(strings.TrimSpace(stdout.String()))
	if !payload.IsObject() {
		return gjson.Result{}, services.Wrap(services.ErrParse, "youtube", "metadata", "unparseable dump-json output", nil)
	}
	return payload, nil
}

func (c *Client) download(ctx context.Context, raw, out string, onProgress func(float64)) error {
	res, err := runner.Run(ctx, runner.Command{
		Path: c.binary,
		Args: []string{
			"-f", "bestvideo[height<=1080]+bestaudio/best",
			"--merge-output-format", "mp4",
			"--no-playlist",
			"--newline",
			"-o", out,
			raw,
		},
		OnLine: func(stream runner.Stream, line string) {
			if stream != runner.Stdout || onProgress == nil {
				return
			}
			if m := percentPattern.FindStringSubmatch(line); m != nil {
				if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
					onProgress(pct / 100)
				}
			}
		},
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return services.Wrap(services.ErrExternalTool, "youtube", "download",
			"yt-dlp exited "+strconv.Itoa(res.ExitCode)+": "+res.StderrTail, nil)
	}
	return nil
}
