package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"vidgo/internal/config"
	"vidgo/internal/deps"
	"vidgo/internal/language"
	"vidgo/internal/logging"
	"vidgo/internal/media/ffprobe"
	"vidgo/internal/runner"
	"vidgo/internal/services"
	"vidgo/internal/subtitles"
)

// modelFiles maps model aliases to ggml file names under the model dir.
var modelFiles = map[string]string{
	"large-v3":    "ggml-large-v3.bin",
	"large-v2":    "ggml-large-v2.bin",
	"medium":      "ggml-medium.bin",
	"small":       "ggml-small.bin",
	"base":        "ggml-base.bin",
	"tiny":        "ggml-tiny.bin",
	"large-v3-q5": "ggml-large-v3-q5_0.bin",
	"medium-q5":   "ggml-medium-q5_0.bin",
}

// dtwAliases maps model aliases to the token-level timestamp preset the
// binary expects. Quantized variants share the preset of the full model.
var dtwAliases = map[string]string{
	"large-v3":    "large.v3",
	"large-v2":    "large.v2",
	"large-v3-q5": "large.v3",
	"medium-q5":   "medium",
}

// timestampPattern matches the leading segment timestamp the binary prints
// on stdout, e.g. "[00:01:23,456 --> ...".
var timestampPattern = regexp.MustCompile(`\[(\d{2}:\d{2}:\d{2}[,.]\d{3})\s+-->`)

// WhisperCPP transcribes locally with a whisper.cpp binary. Word-level
// timestamps come from the JSON sidecar the binary writes next to the
// audio file.
type WhisperCPP struct {
	cfg *config.Config
	log *slog.Logger
}

func NewWhisperCPP(cfg *config.Config, logger *slog.Logger) *WhisperCPP {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &WhisperCPP{cfg: cfg, log: logging.NewComponentLogger(logger, "transcribe.whispercpp")}
}

func (e *WhisperCPP) Descriptor() Descriptor {
	return Descriptor{Name: "whispercpp", Type: "local"}
}

func (e *WhisperCPP) Available(_ context.Context, _ map[string]string) error {
	binary := deps.WhisperBinary(e.cfg.Transcribe.WhisperBinDir, e.cfg.Transcribe.DevicePreference)
	if binary == "" {
		return services.Wrap(services.ErrUnavailable, "transcribe.whispercpp", "available",
			"no whisper binary in "+e.cfg.Transcribe.WhisperBinDir, nil)
	}
	model, err := e.modelPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(model); err != nil {
		return services.Wrap(services.ErrUnavailable, "transcribe.whispercpp", "available",
			"model file missing: "+model, err)
	}
	return nil
}

func (e *WhisperCPP) Transcribe(ctx context.Context, _ map[string]string, req Request) (string, error) {
	binary := deps.WhisperBinary(e.cfg.Transcribe.WhisperBinDir, e.cfg.Transcribe.DevicePreference)
	if binary == "" {
		return "", services.Wrap(services.ErrUnavailable, "transcribe.whispercpp", "transcribe",
			"no whisper binary in "+e.cfg.Transcribe.WhisperBinDir, nil)
	}
	model, err := e.modelPath()
	if err != nil {
		return "", err
	}

	var totalSeconds float64
	if probe, err := ffprobe.Inspect(ctx, e.cfg.FFprobeBinary(), req.AudioPath); err == nil {
		totalSeconds = probe.DurationSeconds()
	}

	device := deps.WhisperDevice(binary)
	args := []string{
		"-m", model,
		"-f", req.AudioPath,
		"-ojf",
		"-fa",
		"-ml", "1",
		"-l", languageOrAuto(req.Language),
		"-t", strconv.Itoa(threadCount()),
		"-bs", "5",
		"-bo", "5",
	}
	if alias, ok := dtwAliases[e.cfg.Transcribe.WhisperModel]; ok {
		args = append(args, "--dtw", alias)
	}
	if device == "cpu" {
		args = append(args, "-ng")
	}

	report(req.OnStatus, "running whisper.cpp on "+device)
	e.log.Info("starting local transcription",
		logging.String("binary", binary),
		logging.String("model", e.cfg.Transcribe.WhisperModel),
		logging.String("device", device))

	sidecar := req.AudioPath + ".json"
	res, err := runner.Run(ctx, runner.Command{
		Path: binary,
		Args: args,
		OnLine: func(stream runner.Stream, line string) {
			if stream != runner.Stdout || req.OnProgress == nil || totalSeconds <= 0 {
				return
			}
			if fraction, ok := progressFromLine(line, totalSeconds); ok {
				req.OnProgress(fraction)
			}
		},
	})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", services.Wrap(services.ErrExternalTool, "transcribe.whispercpp", "transcribe",
			fmt.Sprintf("exit %d: %s", res.ExitCode, res.StderrTail), nil)
	}

	srt, err := wordSRTFromSidecar(sidecar)
	if err != nil {
		return "", err
	}
	_ = os.Remove(sidecar)
	if req.OnProgress != nil {
		req.OnProgress(1)
	}
	return srt, nil
}

func (e *WhisperCPP) modelPath() (string, error) {
	file, ok := modelFiles[e.cfg.Transcribe.WhisperModel]
	if !ok {
		return "", services.Wrap(services.ErrValidation, "transcribe.whispercpp", "model",
			"unknown model "+e.cfg.Transcribe.WhisperModel, nil)
	}
	return filepath.Join(e.cfg.Transcribe.WhisperModelDir, file), nil
}

// progressFromLine estimates completion from the last printed segment
// timestamp, capped below 1 until the run finishes.
func progressFromLine(line string, totalSeconds float64) (float64, bool) {
	m := timestampPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	stamp, err := subtitles.ParseTimestamp(m[1])
	if err != nil {
		return 0, false
	}
	fraction := stamp.Seconds() / totalSeconds
	if fraction > 0.98 {
		fraction = 0.98
	}
	return fraction, true
}

// wordSRTFromSidecar converts the binary's -ojf output into a word-level
// SRT. Entries with empty text are dropped.
func wordSRTFromSidecar(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", services.Wrap(services.ErrParse, "transcribe.whispercpp", "sidecar",
			"read "+path, err)
	}
	entries := gjson.GetBytes(data, "transcription")
	if !entries.IsArray() {
		return "", services.Wrap(services.ErrParse, "transcribe.whispercpp", "sidecar",
			"no transcription array in "+path, nil)
	}
	var cues []subtitles.Cue
	entries.ForEach(func(_, entry gjson.Result) bool {
		text := strings.TrimSpace(entry.Get("text").String())
		if text == "" {
			return true
		}
		cues = append(cues, subtitles.Cue{
			Start: time.Duration(entry.Get("offsets.from").Int()) * time.Millisecond,
			End:   time.Duration(entry.Get("offsets.to").Int()) * time.Millisecond,
			Text:  text,
		})
		return true
	})
	if len(cues) == 0 {
		return "", services.Wrap(services.ErrParse, "transcribe.whispercpp", "sidecar",
			"no usable words in "+path, nil)
	}
	return subtitles.FormatSRT(cues), nil
}

// languageOrAuto maps a recorded language to the two-letter code the
// engines expect, falling back to auto-detection when nothing usable
// was recorded.
func languageOrAuto(lang string) string {
	if code := language.ToISO2(lang); code != "" {
		return code
	}
	return "auto"
}

// threadCount caps the recognizer at a third of the cores so a long
// transcription never starves the rest of the daemon.
func threadCount() int {
	n := runtime.NumCPU() / 3
	if n < 1 {
		n = 1
	}
	return n
}

func report(onStatus func(string), status string) {
	if onStatus != nil {
		onStatus(status)
	}
}
