package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/tidwall/gjson"

	"vidgo/internal/logging"
	"vidgo/internal/services"
	"vidgo/internal/subtitles"
)

const (
	defaultElevenLabsBase  = "https://api.elevenlabs.io"
	defaultElevenLabsModel = "scribe_v1"
)

// ElevenLabs transcribes through the ElevenLabs speech-to-text API. The
// response tokenizes audio events and spacing alongside words; only word
// tokens become cues.
type ElevenLabs struct {
	httpClient *http.Client
	log        *slog.Logger
}

type ElevenLabsOption func(*ElevenLabs)

func WithElevenLabsHTTPClient(hc *http.Client) ElevenLabsOption {
	return func(e *ElevenLabs) { e.httpClient = hc }
}

func NewElevenLabs(logger *slog.Logger, opts ...ElevenLabsOption) *ElevenLabs {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &ElevenLabs{
		httpClient: http.DefaultClient,
		log:        logging.NewComponentLogger(logger, "transcribe.elevenlabs"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *ElevenLabs) Descriptor() Descriptor {
	return Descriptor{Name: "elevenlabs", Type: "api", RequiresAPIKey: true}
}

func (e *ElevenLabs) Available(_ context.Context, settings map[string]string) error {
	if strings.TrimSpace(settings[SettingElevenLabsAPIKey]) == "" {
		return services.Wrap(services.ErrUnavailable, "transcribe.elevenlabs", "available",
			"api key not configured", nil)
	}
	return nil
}

func (e *ElevenLabs) Transcribe(ctx context.Context, settings map[string]string, req Request) (string, error) {
	if err := e.Available(ctx, settings); err != nil {
		return "", err
	}
	base := strings.TrimRight(strings.TrimSpace(settings[SettingElevenLabsBaseURL]), "/")
	if base == "" {
		base = defaultElevenLabsBase
	}
	model := strings.TrimSpace(settings[SettingElevenLabsModel])
	if model == "" {
		model = defaultElevenLabsModel
	}

	file, err := os.Open(req.AudioPath)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "transcribe.elevenlabs", "transcribe",
			"open "+req.AudioPath, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return "", services.Wrap(services.ErrUnavailable, "transcribe.elevenlabs", "transcribe", "build form", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", services.Wrap(services.ErrUnavailable, "transcribe.elevenlabs", "transcribe", "copy audio", err)
	}
	_ = writer.WriteField("model_id", model)
	if lang := languageOrAuto(req.Language); lang != "auto" {
		_ = writer.WriteField("language_code", lang)
	}
	if err := writer.Close(); err != nil {
		return "", services.Wrap(services.ErrUnavailable, "transcribe.elevenlabs", "transcribe", "finish form", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/speech-to-text", &body)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "transcribe.elevenlabs", "transcribe", "build request", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("xi-api-key", settings[SettingElevenLabsAPIKey])

	report(req.OnStatus, "uploading audio to transcription api")
	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrCanceled, "transcribe.elevenlabs", "transcribe", "request aborted", ctx.Err())
		}
		return "", services.Wrap(services.ErrTransient, "transcribe.elevenlabs", "transcribe", base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrPermanent
		if resp.StatusCode >= 500 {
			marker = services.ErrTransient
		}
		return "", services.Wrap(marker, "transcribe.elevenlabs", "transcribe",
			fmt.Sprintf("%s: status %d", base, resp.StatusCode), nil)
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe.elevenlabs", "transcribe", "read body", err)
	}

	srt, err := wordSRTFromScribeJSON(payload)
	if err != nil {
		return "", err
	}
	e.log.Info("api transcription complete", logging.String("audio", req.AudioPath))
	if req.OnProgress != nil {
		req.OnProgress(1)
	}
	return srt, nil
}

// wordSRTFromScribeJSON builds per-word cues from the words array, keeping
// only word-type tokens that carry at least one letter or digit. Degenerate
// durations get a millisecond floor so cues stay monotonic.
func wordSRTFromScribeJSON(raw []byte) (string, error) {
	words := gjson.GetBytes(raw, "words")
	if !words.IsArray() {
		return "", services.Wrap(services.ErrParse, "transcribe.elevenlabs", "decode",
			"response carries no word timestamps", nil)
	}
	var cues []subtitles.Cue
	words.ForEach(func(_, word gjson.Result) bool {
		if kind := word.Get("type").String(); kind != "" && kind != "word" {
			return true
		}
		text := strings.TrimSpace(word.Get("text").String())
		if !hasWordChar(text) {
			return true
		}
		start := time.Duration(word.Get("start").Float() * float64(time.Second))
		end := time.Duration(word.Get("end").Float() * float64(time.Second))
		if end <= start {
			end = start + time.Millisecond
		}
		cues = append(cues, subtitles.Cue{Start: start, End: end, Text: text})
		return true
	})
	if len(cues) == 0 {
		return "", services.Wrap(services.ErrParse, "transcribe.elevenlabs", "decode",
			"response words array is empty", nil)
	}
	return subtitles.FormatSRT(cues), nil
}

func hasWordChar(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
