package transcribe

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"vidgo/internal/logging"
	"vidgo/internal/services"
	"vidgo/internal/subtitles"
)

// OpenAIWhisper transcribes through the OpenAI audio API, or any
// compatible endpoint configured via the base URL setting. Word
// timestamps come from the verbose JSON response.
type OpenAIWhisper struct {
	log  *slog.Logger
	opts []option.RequestOption
}

func NewOpenAIWhisper(logger *slog.Logger, opts ...option.RequestOption) *OpenAIWhisper {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &OpenAIWhisper{
		log:  logging.NewComponentLogger(logger, "transcribe.openai"),
		opts: opts,
	}
}

func (e *OpenAIWhisper) Descriptor() Descriptor {
	return Descriptor{Name: "openai_whisper", Type: "api", RequiresAPIKey: true}
}

func (e *OpenAIWhisper) Available(_ context.Context, settings map[string]string) error {
	if strings.TrimSpace(settings[SettingOpenAIAPIKey]) == "" {
		return services.Wrap(services.ErrUnavailable, "transcribe.openai", "available",
			"api key not configured", nil)
	}
	return nil
}

func (e *OpenAIWhisper) Transcribe(ctx context.Context, settings map[string]string, req Request) (string, error) {
	if err := e.Available(ctx, settings); err != nil {
		return "", err
	}

	file, err := os.Open(req.AudioPath)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "transcribe.openai", "transcribe",
			"open "+req.AudioPath, err)
	}
	defer file.Close()

	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(settings[SettingOpenAIAPIKey]),
	}, e.opts...)
	if base := strings.TrimSpace(settings[SettingOpenAIBaseURL]); base != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(base))
	}
	client := openai.NewClient(clientOpts...)

	params := openai.AudioTranscriptionNewParams{
		Model:                  openai.AudioModelWhisper1,
		File:                   file,
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word"},
	}
	if lang := languageOrAuto(req.Language); lang != "auto" {
		params.Language = openai.String(lang)
	}

	report(req.OnStatus, "uploading audio to transcription api")
	transcription, err := client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrCanceled, "transcribe.openai", "transcribe", "request aborted", ctx.Err())
		}
		return "", services.Wrap(services.ErrTransient, "transcribe.openai", "transcribe", "api request", err)
	}

	srt, err := wordSRTFromVerboseJSON(transcription.RawJSON())
	if err != nil {
		return "", err
	}
	e.log.Info("api transcription complete", logging.String("audio", req.AudioPath))
	if req.OnProgress != nil {
		req.OnProgress(1)
	}
	return srt, nil
}

// wordSRTFromVerboseJSON builds per-word cues from the verbose_json
// response's words array.
func wordSRTFromVerboseJSON(raw string) (string, error) {
	words := gjson.Get(raw, "words")
	if !words.IsArray() {
		return "", services.Wrap(services.ErrParse, "transcribe.openai", "decode",
			"response carries no word timestamps", nil)
	}
	var cues []subtitles.Cue
	words.ForEach(func(_, word gjson.Result) bool {
		text := strings.TrimSpace(word.Get("word").String())
		if text == "" {
			return true
		}
		cues = append(cues, subtitles.Cue{
			Start: time.Duration(word.Get("start").Float() * float64(time.Second)),
			End:   time.Duration(word.Get("end").Float() * float64(time.Second)),
			Text:  text,
		})
		return true
	})
	if len(cues) == 0 {
		return "", services.Wrap(services.ErrParse, "transcribe.openai", "decode",
			"response words array is empty", nil)
	}
	return subtitles.FormatSRT(cues), nil
}
