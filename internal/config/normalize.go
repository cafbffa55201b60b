package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeTranscribe(); err != nil {
		return err
	}
	c.normalizeWorkers()
	c.normalizeTimeouts()
	c.normalizeTranscode()
	c.normalizeSubtitles()
	c.normalizeExport()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.ArtifactRoot) == "" {
		c.Paths.ArtifactRoot = defaultArtifactRoot
	}
	if c.Paths.ArtifactRoot, err = expandPath(c.Paths.ArtifactRoot); err != nil {
		return fmt.Errorf("paths.artifact_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorkers() {
	if c.Workers.Download <= 0 {
		c.Workers.Download = 1
	}
	if c.Workers.Subtitle <= 0 {
		c.Workers.Subtitle = 1
	}
	if c.Workers.Export <= 0 {
		c.Workers.Export = 1
	}
	if c.Workers.LLMBatch <= 0 {
		c.Workers.LLMBatch = defaultLLMBatchWorkers
	}
	if c.Workers.QueuePollInterval <= 0 {
		c.Workers.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workers.ErrorRetryInterval <= 0 {
		c.Workers.ErrorRetryInterval = defaultErrorRetry
	}
	if c.Workers.HeartbeatInterval <= 0 {
		c.Workers.HeartbeatInterval = defaultHeartbeatInterval
	}
}

func (c *Config) normalizeTimeouts() {
	if c.Timeouts.DownloadMinutes <= 0 {
		c.Timeouts.DownloadMinutes = defaultDownloadMinutes
	}
	if c.Timeouts.TranscribeMinutes <= 0 {
		c.Timeouts.TranscribeMinutes = defaultTranscribeMinutes
	}
	if c.Timeouts.ExportMinutes <= 0 {
		c.Timeouts.ExportMinutes = defaultExportMinutes
	}
	if c.Timeouts.DefaultMinutes <= 0 {
		c.Timeouts.DefaultMinutes = defaultStageMinutes
	}
}

func (c *Config) normalizeTranscode() {
	c.Transcode.FFmpegBinary = strings.TrimSpace(c.Transcode.FFmpegBinary)
	c.Transcode.FFprobeBinary = strings.TrimSpace(c.Transcode.FFprobeBinary)
	if c.Transcode.HLSSegmentSeconds <= 0 {
		c.Transcode.HLSSegmentSeconds = defaultHLSSegmentSeconds
	}
	if c.Transcode.AudioBitrateKbps <= 0 {
		c.Transcode.AudioBitrateKbps = defaultAudioBitrateKbps
	}
	if c.Transcode.AudioSampleRate <= 0 {
		c.Transcode.AudioSampleRate = defaultAudioSampleRate
	}
	if c.Waveform.SamplesPerSecond <= 0 {
		c.Waveform.SamplesPerSecond = defaultWaveformSPS
	}
	c.Fetch.YtdlpBinary = strings.TrimSpace(c.Fetch.YtdlpBinary)
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeTranscribe() error {
	var err error
	if strings.TrimSpace(c.Transcribe.WhisperBinDir) == "" {
		c.Transcribe.WhisperBinDir = defaultWhisperBinDir
	}
	if c.Transcribe.WhisperBinDir, err = expandPath(c.Transcribe.WhisperBinDir); err != nil {
		return fmt.Errorf("transcribe.whisper_bin_dir: %w", err)
	}
	if strings.TrimSpace(c.Transcribe.WhisperModelDir) == "" {
		c.Transcribe.WhisperModelDir = defaultWhisperModelDir
	}
	if c.Transcribe.WhisperModelDir, err = expandPath(c.Transcribe.WhisperModelDir); err != nil {
		return fmt.Errorf("transcribe.whisper_model_dir: %w", err)
	}
	c.Transcribe.WhisperModel = strings.TrimSpace(c.Transcribe.WhisperModel)
	if c.Transcribe.WhisperModel == "" {
		c.Transcribe.WhisperModel = defaultWhisperModel
	}
	c.Transcribe.DevicePreference = strings.ToLower(strings.TrimSpace(c.Transcribe.DevicePreference))
	if c.Transcribe.DevicePreference == "" {
		c.Transcribe.DevicePreference = "auto"
	}
	return nil
}

func (c *Config) normalizeSubtitles() {
	if c.Subtitles.SegmentThreshold <= 0 {
		c.Subtitles.SegmentThreshold = defaultSegmentThreshold
	}
	if c.Subtitles.SplitRange <= 0 {
		c.Subtitles.SplitRange = defaultSplitRange
	}
	if c.Subtitles.MaxDisplay <= 0 {
		c.Subtitles.MaxDisplay = defaultMaxDisplay
	}
	if c.Subtitles.MinDisplay <= 0 {
		c.Subtitles.MinDisplay = defaultMinDisplay
	}
	if c.Subtitles.BatchSize <= 0 {
		c.Subtitles.BatchSize = defaultBatchSize
	}
	if c.Subtitles.ContextSize <= 0 {
		c.Subtitles.ContextSize = defaultContextSize
	}
}

func (c *Config) normalizeExport() {
	c.Export.FontName = strings.TrimSpace(c.Export.FontName)
	if c.Export.FontName == "" {
		c.Export.FontName = defaultExportFontName
	}
	if c.Export.FontSize <= 0 {
		c.Export.FontSize = defaultExportFontSize
	}
	c.Export.Colour = strings.TrimSpace(c.Export.Colour)
	if c.Export.Colour == "" {
		c.Export.Colour = defaultExportColour
	}
	c.Export.SecondColor = strings.TrimSpace(c.Export.SecondColor)
	if c.Export.SecondColor == "" {
		c.Export.SecondColor = defaultExportSecondCol
	}
	if c.Export.SecondSize <= 0 {
		c.Export.SecondSize = c.Export.FontSize - 4
	}
	if c.Export.Outline < 0 {
		c.Export.Outline = defaultExportOutline
	}
	if c.Export.Shadow < 0 {
		c.Export.Shadow = defaultExportShadow
	}
	if c.Export.MarginV <= 0 {
		c.Export.MarginV = defaultExportMarginV
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
