package subtitles

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"vidgo/internal/logging"
	"vidgo/internal/services"
	"vidgo/internal/services/llm"
)

const (
	defaultTranslateBatch   = 15
	defaultTranslateContext = 3
	defaultTranslateWorkers = 4
)

// Translator runs the two-pass subtitle translation: a faithful pass that
// renders each line literally, then a reflection pass that rewrites the
// draft into natural target-language subtitles. Cue count and timestamps
// never change; a batch that fails to parse degrades to the faithful draft
// and finally to the source text.
type Translator struct {
	client      *llm.Client
	log         *slog.Logger
	batchSize   int
	contextSize int
	workers     int
	source      string
	target      string
	terms       string
	onProgress  func(float64)
}

// TranslatorOption adjusts Translator construction.
type TranslatorOption func(*Translator)

// WithTranslatorLogger sets the logger.
func WithTranslatorLogger(log *slog.Logger) TranslatorOption {
	return func(t *Translator) {
		if log != nil {
			t.log = log
		}
	}
}

// WithTranslatorBatch overrides batch and context sizes. Zero values keep
// the defaults.
func WithTranslatorBatch(batchSize, contextSize int) TranslatorOption {
	return func(t *Translator) {
		if batchSize > 0 {
			t.batchSize = batchSize
		}
		if contextSize > 0 {
			t.contextSize = contextSize
		}
	}
}

// WithTranslatorWorkers bounds concurrent batch requests.
func WithTranslatorWorkers(n int) TranslatorOption {
	return func(t *Translator) {
		if n > 0 {
			t.workers = n
		}
	}
}

// WithTerms passes terminology hints into the faithful prompt.
func WithTerms(terms string) TranslatorOption {
	return func(t *Translator) { t.terms = strings.TrimSpace(terms) }
}

// WithTranslatorProgress reports completion in [0,1] across both passes.
func WithTranslatorProgress(fn func(float64)) TranslatorOption {
	return func(t *Translator) { t.onProgress = fn }
}

// NewTranslator builds a Translator for the given language pair.
func NewTranslator(client *llm.Client, sourceLang, targetLang string, opts ...TranslatorOption) *Translator {
	t := &Translator{
		client:      client,
		log:         logging.NewNop(),
		batchSize:   defaultTranslateBatch,
		contextSize: defaultTranslateContext,
		workers:     defaultTranslateWorkers,
		source:      sourceLang,
		target:      targetLang,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TranslateFile reads an SRT, translates it, and writes the translated
// track.
func (t *Translator) TranslateFile(ctx context.Context, srcPath, dstPath string) error {
	cues, err := ReadSRT(srcPath)
	if err != nil {
		return err
	}
	translated, err := t.Translate(ctx, cues)
	if err != nil {
		return err
	}
	return WriteTranslationSRT(dstPath, translated)
}

type translatePass int

const (
	passFaithful translatePass = iota
	passFree
)

type translatedLine struct {
	text    string
	direct  string
	reflect string
	free    string
}

// Translate returns a copy of cues with Translation filled in. Only
// cancellation fails the call; per-batch LLM or parse failures degrade
// line by line to the faithful draft, then to the source text.
func (t *Translator) Translate(ctx context.Context, cues []Cue) ([]Cue, error) {
	if len(cues) == 0 {
		return nil, services.Wrap(services.ErrValidation, "subtitles", "translate", "no cues to translate", nil)
	}
	if t.client == nil {
		return nil, services.Wrap(services.ErrValidation, "subtitles", "translate", "no llm client configured", nil)
	}

	lines := make([]translatedLine, len(cues))
	for i, cue := range cues {
		lines[i].text = strings.TrimSpace(cue.Text)
	}

	if err := t.runPass(ctx, lines, passFaithful, 0); err != nil {
		return nil, err
	}
	if err := t.runPass(ctx, lines, passFree, 0.5); err != nil {
		return nil, err
	}

	out := make([]Cue, len(cues))
	for i, cue := range cues {
		out[i] = cue
		out[i].Translation = firstNonBlank(lines[i].free, lines[i].direct, lines[i].text)
	}
	return out, nil
}

func (t *Translator) runPass(ctx context.Context, lines []translatedLine, pass translatePass, progressBase float64) error {
	total := (len(lines) + t.batchSize - 1) / t.batchSize
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(t.workers)
	var done atomic.Int64
	for start := 0; start < len(lines); start += t.batchSize {
		end := min(start+t.batchSize, len(lines))
		start := start
		group.Go(func() error {
			t.translateBatch(groupCtx, lines, start, end, pass)
			t.report(progressBase + 0.5*float64(done.Add(1))/float64(total))
			return groupCtx.Err()
		})
	}
	if err := group.Wait(); err != nil {
		return wrapAborted("translate", err)
	}
	return nil
}

func (t *Translator) report(fraction float64) {
	if t.onProgress != nil {
		t.onProgress(fraction)
	}
}

// translateBatch sends one batch to the LLM and writes results back into
// lines[start:end]. It never returns an error; failures leave fallback
// values in place.
func (t *Translator) translateBatch(ctx context.Context, lines []translatedLine, start, end int, pass translatePass) {
	batch := lines[start:end]

	input := make(map[string]map[string]string, len(batch))
	for i := range batch {
		entry := map[string]string{"original": batch[i].text}
		if pass == passFree {
			entry["direct"] = batch[i].direct
		}
		input[strconv.Itoa(i+1)] = entry
	}
	encoded, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		t.fillFallback(batch, pass)
		return
	}

	previous := t.contextLines(lines, start-t.contextSize, start)
	next := t.contextLines(lines, end, end+t.contextSize)
	var system string
	if pass == passFaithful {
		system = faithfulPrompt(t.source, t.target, previous, next, t.terms)
	} else {
		system = freePrompt(t.source, t.target, previous, next)
	}
	user := "INPUT:\n" + string(encoded)

	payload, err := t.client.CompleteJSON(ctx, system, user)
	if err != nil {
		t.log.Warn("translation batch failed, keeping fallback text",
			logging.Int("batch_start", start),
			logging.Error(err))
		t.fillFallback(batch, pass)
		return
	}

	var parsed map[string]struct {
		Original string `json:"original"`
		Direct   string `json:"direct"`
		Reflect  string `json:"reflect"`
		Free     string `json:"free"`
	}
	if err := llm.DecodeLLMJSON(payload, &parsed); err != nil {
		t.log.Warn("translation batch returned unparseable JSON, keeping fallback text",
			logging.Int("batch_start", start),
			logging.Error(err))
		t.fillFallback(batch, pass)
		return
	}

	for i := range batch {
		entry, ok := parsed[strconv.Itoa(i+1)]
		switch pass {
		case passFaithful:
			if ok && strings.TrimSpace(entry.Direct) != "" {
				batch[i].direct = entry.Direct
			} else {
				batch[i].direct = batch[i].text
			}
		case passFree:
			if ok {
				batch[i].reflect = entry.Reflect
			}
			if ok && strings.TrimSpace(entry.Free) != "" {
				batch[i].free = entry.Free
			} else {
				batch[i].free = firstNonBlank(batch[i].direct, batch[i].text)
			}
		}
	}
}

func (t *Translator) fillFallback(batch []translatedLine, pass translatePass) {
	for i := range batch {
		switch pass {
		case passFaithful:
			if batch[i].direct == "" {
				batch[i].direct = batch[i].text
			}
		case passFree:
			if batch[i].free == "" {
				batch[i].free = firstNonBlank(batch[i].direct, batch[i].text)
			}
		}
	}
}

// contextLines renders surrounding source lines for the prompt, numbered
// by their absolute position.
func (t *Translator) contextLines(lines []translatedLine, from, to int) string {
	from = max(from, 0)
	to = min(to, len(lines))
	if from >= to {
		return ""
	}
	parts := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		parts = append(parts, fmt.Sprintf("%d. %s", i+1, lines[i].text))
	}
	return strings.Join(parts, "\n")
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
