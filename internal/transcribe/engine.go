package transcribe

import (
	"context"
	"log/slog"
	"strings"

	"vidgo/internal/logging"
	"vidgo/internal/services"
)

// Settings keys consulted by the engines and the selector.
const (
	SettingOpenAIAPIKey      = "asr.openai_whisper.api_key"
	SettingOpenAIBaseURL     = "asr.openai_whisper.base_url"
	SettingElevenLabsAPIKey  = "asr.elevenlabs.api_key"
	SettingElevenLabsBaseURL = "asr.elevenlabs.base_url"
	SettingElevenLabsModel   = "asr.elevenlabs.model"
	SettingRemoteBaseURL     = "asr.remote_vidgo.base_url"
)

const defaultPrimaryEngine = "whispercpp"

// Descriptor identifies an engine to operators and the settings UI.
// A nil Languages slice means the engine auto-detects and accepts any.
type Descriptor struct {
	Name           string
	Type           string // local, api, or remote
	RequiresAPIKey bool
	Languages      []string
}

// Request describes one transcription. OnStatus receives coarse state
// strings, OnProgress a [0,1] fraction where the engine can estimate one.
type Request struct {
	AudioPath  string
	Language   string
	OnStatus   func(string)
	OnProgress func(float64)
}

// Engine produces a word-level SRT from an audio file. Settings are passed
// per call so runtime configuration changes apply without rebuilding
// engines.
type Engine interface {
	Descriptor() Descriptor
	Available(ctx context.Context, settings map[string]string) error
	Transcribe(ctx context.Context, settings map[string]string, req Request) (string, error)
}

// Selector resolves the primary and fallback engines from settings and
// applies the single-fallback policy.
type Selector struct {
	engines map[string]Engine
	order   []string
	log     *slog.Logger
}

func NewSelector(logger *slog.Logger, engines ...Engine) *Selector {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Selector{
		engines: make(map[string]Engine, len(engines)),
		log:     logging.NewComponentLogger(logger, "transcribe"),
	}
	for _, engine := range engines {
		name := engine.Descriptor().Name
		s.engines[name] = engine
		s.order = append(s.order, name)
	}
	return s
}

// Engines lists the registered engine names in registration order.
func (s *Selector) Engines() []string {
	return append([]string(nil), s.order...)
}

func (s *Selector) Engine(name string) (Engine, bool) {
	engine, ok := s.engines[name]
	return engine, ok
}

// Transcribe runs the configured primary engine, falling back at most once:
// either because the primary is unavailable up front, or because it failed
// at runtime.
func (s *Selector) Transcribe(ctx context.Context, settings map[string]string, req Request) (string, error) {
	primaryName := strings.TrimSpace(settings["asr.primary_engine"])
	if primaryName == "" {
		primaryName = defaultPrimaryEngine
	}
	fallbackName := strings.TrimSpace(settings["asr.fallback_engine"])
	if fallbackName == primaryName {
		fallbackName = ""
	}

	primary, ok := s.engines[primaryName]
	if !ok {
		return "", services.Wrap(services.ErrValidation, "transcribe", "select", "unknown engine "+primaryName, nil)
	}

	if err := primary.Available(ctx, settings); err != nil {
		s.log.Warn("primary engine unavailable",
			logging.String("engine", primaryName),
			logging.Error(err))
		return s.runFallback(ctx, settings, req, fallbackName, err)
	}

	srt, err := primary.Transcribe(ctx, settings, req)
	if err == nil {
		return srt, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	s.log.Warn("primary engine failed, trying fallback",
		logging.String("engine", primaryName),
		logging.Error(err))
	return s.runFallback(ctx, settings, req, fallbackName, err)
}

func (s *Selector) runFallback(ctx context.Context, settings map[string]string, req Request, fallbackName string, primaryErr error) (string, error) {
	if fallbackName == "" {
		return "", primaryErr
	}
	fallback, ok := s.engines[fallbackName]
	if !ok {
		return "", primaryErr
	}
	if err := fallback.Available(ctx, settings); err != nil {
		s.log.Warn("fallback engine unavailable",
			logging.String("engine", fallbackName),
			logging.Error(err))
		return "", primaryErr
	}
	return fallback.Transcribe(ctx, settings, req)
}
