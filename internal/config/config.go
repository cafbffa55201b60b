package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	ArtifactRoot string `toml:"artifact_root"`
	WorkDir      string `toml:"work_dir"`
	LogDir       string `toml:"log_dir"`
}

// Workers contains worker lane concurrency and polling settings.
type Workers struct {
	Download           int `toml:"download"`
	Subtitle           int `toml:"subtitle"`
	Export             int `toml:"export"`
	LLMBatch           int `toml:"llm_batch"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
}

// Timeouts contains per-stage execution limits in minutes.
type Timeouts struct {
	DownloadMinutes   int `toml:"download_minutes"`
	TranscribeMinutes int `toml:"transcribe_minutes"`
	ExportMinutes     int `toml:"export_minutes"`
	DefaultMinutes    int `toml:"default_minutes"`
}

// Transcode contains ffmpeg/ffprobe invocation settings.
type Transcode struct {
	FFmpegBinary      string `toml:"ffmpeg_binary"`
	FFprobeBinary     string `toml:"ffprobe_binary"`
	HLSSegmentSeconds int    `toml:"hls_segment_seconds"`
	AudioBitrateKbps  int    `toml:"audio_bitrate_kbps"`
	AudioSampleRate   int    `toml:"audio_sample_rate"`
	PreserveAudio     bool   `toml:"preserve_audio_codec"`
}

// Waveform contains peak extraction settings.
type Waveform struct {
	SamplesPerSecond int `toml:"samples_per_second"`
}

// Fetch contains source downloader settings.
type Fetch struct {
	YtdlpBinary string `toml:"ytdlp_binary"`
	UserAgent   string `toml:"user_agent"`
}

// Transcribe contains local speech recognition settings.
type Transcribe struct {
	WhisperBinDir    string `toml:"whisper_bin_dir"`
	WhisperModelDir  string `toml:"whisper_model_dir"`
	WhisperModel     string `toml:"whisper_model"`
	DevicePreference string `toml:"device_preference"`
}

// Subtitles contains segmentation and translation tuning.
type Subtitles struct {
	SegmentThreshold int `toml:"segment_threshold"`
	SplitRange       int `toml:"split_range"`
	MaxDisplay       int `toml:"max_display"`
	MinDisplay       int `toml:"min_display"`
	BatchSize        int `toml:"batch_size"`
	ContextSize      int `toml:"context_size"`
}

// Export contains default burn-in subtitle styling.
type Export struct {
	FontName    string `toml:"font_name"`
	FontSize    int    `toml:"font_size"`
	Colour      string `toml:"colour"`
	Bold        bool   `toml:"bold"`
	Outline     int    `toml:"outline"`
	Shadow      int    `toml:"shadow"`
	MarginV     int    `toml:"margin_v"`
	SecondColor string `toml:"second_colour"`
	SecondSize  int    `toml:"second_size"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the pipeline daemon.
//
// Configuration sections by subsystem:
//   - Paths: artifact root, scratch space, and log directory
//   - Workers: lane concurrency and daemon polling intervals
//   - Timeouts: per-stage execution limits
//   - Transcode: ffmpeg/ffprobe binaries and derived media tuning
//   - Waveform: peak extraction rate
//   - Fetch: source downloader binaries and HTTP identity
//   - Transcribe: whisper.cpp binaries, models, and device preference
//   - Subtitles: segmentation and translation batch tuning
//   - Export: burn-in subtitle style defaults
//   - Logging: log format and level
//
// Per-provider API keys (LLM, cloud ASR) are deliberately not here; they live
// in the settings table so they can change between jobs without a restart.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Workers    Workers    `toml:"workers"`
	Timeouts   Timeouts   `toml:"timeouts"`
	Transcode  Transcode  `toml:"transcode"`
	Waveform   Waveform   `toml:"waveform"`
	Fetch      Fetch      `toml:"fetch"`
	Transcribe Transcribe `toml:"transcribe"`
	Subtitles  Subtitles  `toml:"subtitles"`
	Export     Export     `toml:"export"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vidgo/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/vidgo/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidgo.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ArtifactRoot, c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	if v := strings.TrimSpace(c.Transcode.FFmpegBinary); v != "" {
		return v
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	if v := strings.TrimSpace(c.Transcode.FFprobeBinary); v != "" {
		return v
	}
	return "ffprobe"
}

// YtdlpBinary returns the downloader executable used by the YouTube fetcher.
func (c *Config) YtdlpBinary() string {
	if v := strings.TrimSpace(c.Fetch.YtdlpBinary); v != "" {
		return v
	}
	return "yt-dlp"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
