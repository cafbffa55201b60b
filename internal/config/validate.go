package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateSubtitles(); err != nil {
		return err
	}
	if err := c.validateTranscribe(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.ArtifactRoot == "" {
		return errors.New("paths.artifact_root must be set")
	}
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.ArtifactRoot == c.Paths.WorkDir {
		return errors.New("paths.artifact_root and paths.work_dir must differ")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	return ensurePositiveMap(map[string]int{
		"workers.download":             c.Workers.Download,
		"workers.subtitle":             c.Workers.Subtitle,
		"workers.export":               c.Workers.Export,
		"workers.llm_batch":            c.Workers.LLMBatch,
		"workers.queue_poll_interval":  c.Workers.QueuePollInterval,
		"workers.error_retry_interval": c.Workers.ErrorRetryInterval,
		"workers.heartbeat_interval":   c.Workers.HeartbeatInterval,
		"timeouts.download_minutes":    c.Timeouts.DownloadMinutes,
		"timeouts.transcribe_minutes":  c.Timeouts.TranscribeMinutes,
		"timeouts.export_minutes":      c.Timeouts.ExportMinutes,
		"timeouts.default_minutes":     c.Timeouts.DefaultMinutes,
	})
}

func (c *Config) validateTranscode() error {
	if c.Transcode.HLSSegmentSeconds <= 0 {
		return errors.New("transcode.hls_segment_seconds must be positive")
	}
	if c.Transcode.AudioBitrateKbps <= 0 {
		return errors.New("transcode.audio_bitrate_kbps must be positive")
	}
	if c.Transcode.AudioSampleRate <= 0 {
		return errors.New("transcode.audio_sample_rate must be positive")
	}
	if c.Waveform.SamplesPerSecond <= 0 {
		return errors.New("waveform.samples_per_second must be positive")
	}
	return nil
}

func (c *Config) validateSubtitles() error {
	if c.Subtitles.MinDisplay >= c.Subtitles.MaxDisplay {
		return errors.New("subtitles.min_display must be less than subtitles.max_display")
	}
	if c.Subtitles.SplitRange >= c.Subtitles.SegmentThreshold {
		return errors.New("subtitles.split_range must be less than subtitles.segment_threshold")
	}
	return nil
}

func (c *Config) validateTranscribe() error {
	switch c.Transcribe.DevicePreference {
	case "auto", "cuda", "vulkan", "cpu":
		return nil
	default:
		return fmt.Errorf("transcribe.device_preference: unsupported value %q", c.Transcribe.DevicePreference)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
