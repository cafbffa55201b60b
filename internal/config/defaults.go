package config

const (
	defaultArtifactRoot      = "~/.local/share/vidgo/media"
	defaultWorkDir           = "~/.local/share/vidgo/work"
	defaultLogDir            = "~/.local/share/vidgo/logs"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultQueuePollInterval = 5
	defaultErrorRetry        = 10
	defaultHeartbeatInterval = 15
	defaultHLSSegmentSeconds = 10
	defaultAudioBitrateKbps  = 192
	defaultAudioSampleRate   = 44100
	defaultWaveformSPS       = 10
	defaultWhisperBinDir     = "~/.local/share/vidgo/whisper/bin"
	defaultWhisperModelDir   = "~/.local/share/vidgo/whisper/models"
	defaultWhisperModel      = "large-v3"
	defaultSegmentThreshold  = 800
	defaultSplitRange        = 50
	defaultMaxDisplay        = 60
	defaultMinDisplay        = 10
	defaultBatchSize         = 15
	defaultContextSize       = 3
	defaultLLMBatchWorkers   = 4
	defaultDownloadMinutes   = 30
	defaultTranscribeMinutes = 60
	defaultExportMinutes     = 30
	defaultStageMinutes      = 10
	defaultUserAgent         = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	defaultExportFontName    = "Noto Sans"
	defaultExportFontSize    = 22
	defaultExportColour      = "&H00FFFFFF"
	defaultExportSecondCol   = "&H0000D7FF"
	defaultExportOutline     = 1
	defaultExportShadow      = 0
	defaultExportMarginV     = 20
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ArtifactRoot: defaultArtifactRoot,
			WorkDir:      defaultWorkDir,
			LogDir:       defaultLogDir,
		},
		Workers: Workers{
			Download:           1,
			Subtitle:           1,
			Export:             1,
			LLMBatch:           defaultLLMBatchWorkers,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetry,
			HeartbeatInterval:  defaultHeartbeatInterval,
		},
		Timeouts: Timeouts{
			DownloadMinutes:   defaultDownloadMinutes,
			TranscribeMinutes: defaultTranscribeMinutes,
			ExportMinutes:     defaultExportMinutes,
			DefaultMinutes:    defaultStageMinutes,
		},
		Transcode: Transcode{
			HLSSegmentSeconds: defaultHLSSegmentSeconds,
			AudioBitrateKbps:  defaultAudioBitrateKbps,
			AudioSampleRate:   defaultAudioSampleRate,
			PreserveAudio:     true,
		},
		Waveform: Waveform{
			SamplesPerSecond: defaultWaveformSPS,
		},
		Fetch: Fetch{
			UserAgent: defaultUserAgent,
		},
		Transcribe: Transcribe{
			WhisperBinDir:    defaultWhisperBinDir,
			WhisperModelDir:  defaultWhisperModelDir,
			WhisperModel:     defaultWhisperModel,
			DevicePreference: "auto",
		},
		Subtitles: Subtitles{
			SegmentThreshold: defaultSegmentThreshold,
			SplitRange:       defaultSplitRange,
			MaxDisplay:       defaultMaxDisplay,
			MinDisplay:       defaultMinDisplay,
			BatchSize:        defaultBatchSize,
			ContextSize:      defaultContextSize,
		},
		Export: Export{
			FontName:    defaultExportFontName,
			FontSize:    defaultExportFontSize,
			Colour:      defaultExportColour,
			Outline:     defaultExportOutline,
			Shadow:      defaultExportShadow,
			MarginV:     defaultExportMarginV,
			SecondColor: defaultExportSecondCol,
			SecondSize:  defaultExportFontSize - 4,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
