package subtitles

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"vidgo/internal/logging"
	"vidgo/internal/services"
	"vidgo/internal/services/llm"
)

const (
	defaultMaxDisplay       = 60
	defaultMinDisplay       = 10
	defaultSectionThreshold = 800
	defaultSplitRange       = 50
	defaultSplitWorkers     = 4

	// minSplitGap is the smallest inter-token silence worth splitting on.
	minSplitGap = 50 * time.Millisecond
)

// SplitFunc turns a section of continuous transcript text into sentence
// fragments.
type SplitFunc func(ctx context.Context, text string) ([]string, error)

// Segmenter groups word-level transcription cues into display-sized
// subtitle lines. Sentence boundaries come from an LLM; everything else is
// timing arithmetic over the word timeline.
type Segmenter struct {
	split            SplitFunc
	merger           *WordMerger
	log              *slog.Logger
	workers          int
	sectionThreshold int
	splitRange       int
	maxDisplay       float64
	minDisplay       float64
	onProgress       func(float64)
}

// SegmenterOption adjusts Segmenter construction.
type SegmenterOption func(*Segmenter)

// WithSegmenterLogger sets the logger.
func WithSegmenterLogger(log *slog.Logger) SegmenterOption {
	return func(s *Segmenter) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSplitFunc overrides the sentence splitter. Used by tests and by
// callers that want rule-based splitting without an LLM.
func WithSplitFunc(fn SplitFunc) SegmenterOption {
	return func(s *Segmenter) { s.split = fn }
}

// WithSegmenterWorkers bounds concurrent sentence-split requests.
func WithSegmenterWorkers(n int) SegmenterOption {
	return func(s *Segmenter) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithSegmenterLimits overrides the section word threshold, split search
// range, and display bounds. Zero values keep the defaults.
func WithSegmenterLimits(sectionThreshold, splitRange, maxDisplay, minDisplay int) SegmenterOption {
	return func(s *Segmenter) {
		if sectionThreshold > 0 {
			s.sectionThreshold = sectionThreshold
		}
		if splitRange > 0 {
			s.splitRange = splitRange
		}
		if maxDisplay > 0 {
			s.maxDisplay = float64(maxDisplay)
		}
		if minDisplay > 0 {
			s.minDisplay = float64(minDisplay)
		}
	}
}

// WithSegmenterProgress reports completion in [0,1] as sections finish.
func WithSegmenterProgress(fn func(float64)) SegmenterOption {
	return func(s *Segmenter) { s.onProgress = fn }
}

// NewSegmenter builds a Segmenter. A nil client is allowed; without one
// (and without WithSplitFunc) all sections use rule-based splitting.
func NewSegmenter(client *llm.Client, opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{
		merger:           NewWordMerger(),
		log:              logging.NewNop(),
		workers:          defaultSplitWorkers,
		sectionThreshold: defaultSectionThreshold,
		splitRange:       defaultSplitRange,
		maxDisplay:       defaultMaxDisplay,
		minDisplay:       defaultMinDisplay,
	}
	if client != nil {
		s.split = func(ctx context.Context, text string) ([]string, error) {
			return splitWithLLM(ctx, client, text)
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.split == nil {
		s.split = func(_ context.Context, text string) ([]string, error) {
			return ruleSplit(text), nil
		}
	}
	return s
}

// OptimizeFile reads a word-level SRT, optimizes it, and writes the
// result.
func (s *Segmenter) OptimizeFile(ctx context.Context, srcPath, dstPath string) error {
	words, err := ReadSRT(srcPath)
	if err != nil {
		return err
	}
	cues, err := s.Optimize(ctx, words)
	if err != nil {
		return err
	}
	return WriteSRT(dstPath, cues)
}

// Optimize turns word-level cues into display-sized subtitle lines.
// Sections fan out to the sentence splitter concurrently; a section whose
// split fails falls back to rule-based splitting, so only cancellation
// aborts the whole pass.
func (s *Segmenter) Optimize(ctx context.Context, words []Cue) ([]Cue, error) {
	tokens := preprocessTokens(words)
	if len(tokens) == 0 {
		return nil, services.Wrap(services.ErrValidation, "subtitles", "optimize",
			"transcript has no usable tokens", nil)
	}

	var full strings.Builder
	for _, tok := range tokens {
		full.WriteString(tok.Text)
	}
	totalWords := CountWords(full.String())
	numSections := (totalWords + s.sectionThreshold - 1) / s.sectionThreshold
	if numSections < 1 {
		numSections = 1
	}
	sections := s.splitSections(tokens, numSections, totalWords)
	s.log.Debug("optimizing transcript",
		logging.Int("tokens", len(tokens)),
		logging.Int("words", totalWords),
		logging.Int("sections", len(sections)))

	sentencesBySection := make([][]string, len(sections))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)
	var done atomic.Int64
	for i, section := range sections {
		i, section := i, section
		group.Go(func() error {
			text := sectionText(section)
			parts, err := s.split(groupCtx, text)
			if err != nil || len(parts) == 0 {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				s.log.Warn("sentence split failed, using rule-based fallback",
					logging.Int("section", i),
					logging.Error(err))
				parts = ruleSplit(text)
			}
			sentencesBySection[i] = parts
			s.report(float64(done.Add(1)) / float64(len(sections)))
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, wrapAborted("optimize", err)
	}

	var sentences []string
	for _, parts := range sentencesBySection {
		sentences = append(sentences, parts...)
	}

	var cues []Cue
	for _, grp := range alignSentences(tokens, sentences) {
		if DisplayWidth(groupText(grp)) > s.maxDisplay {
			cues = append(cues, s.splitLongGroup(grp)...)
		} else {
			cues = append(cues, mergeGroup(grp))
		}
	}
	cues = s.mergeShortCues(cues)
	for i := range cues {
		cues[i].Text = strings.TrimSpace(s.merger.MergeText(cues[i].Text))
	}
	sort.Slice(cues, func(i, j int) bool { return cues[i].Start < cues[j].Start })
	if len(cues) == 0 {
		return nil, services.Wrap(services.ErrParse, "subtitles", "optimize",
			"no sentences aligned to the word timeline", nil)
	}
	return cues, nil
}

func (s *Segmenter) report(fraction float64) {
	if s.onProgress != nil {
		s.onProgress(fraction)
	}
}

var asciiWordToken = regexp.MustCompile(`^[a-zA-Z']+$`)

// preprocessTokens drops pure-punctuation tokens and normalizes ASCII word
// tokens to lowercase with a trailing space so concatenation reads
// naturally.
func preprocessTokens(words []Cue) []Cue {
	out := make([]Cue, 0, len(words))
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" || isPurePunctuation(text) {
			continue
		}
		if asciiWordToken.MatchString(text) {
			text = strings.ToLower(text) + " "
		}
		w.Text = text
		out = append(out, w)
	}
	return out
}

func isPurePunctuation(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return false
		}
	}
	return true
}

// splitSections partitions tokens into roughly equal-word sections. Each
// boundary is nudged to the largest inter-token gap within splitRange of
// its target index so sections end at natural pauses.
func (s *Segmenter) splitSections(tokens []Cue, numSections, totalWords int) [][]Cue {
	if numSections <= 1 || len(tokens) <= numSections {
		return [][]Cue{tokens}
	}
	stride := totalWords / numSections
	boundaries := make([]int, 0, numSections-1)
	for i := 1; i < numSections; i++ {
		target := i * stride
		if target > len(tokens)-2 {
			target = len(tokens) - 2
		}
		lo := max(0, target-s.splitRange)
		hi := min(len(tokens)-1, target+s.splitRange)
		best := target
		var maxGap time.Duration = -1
		for j := lo; j < hi; j++ {
			gap := tokens[j+1].Start - tokens[j].End
			if gap > maxGap {
				maxGap = gap
				best = j
			}
		}
		boundaries = append(boundaries, best)
	}
	sort.Ints(boundaries)
	boundaries = dedupeInts(boundaries)

	var sections [][]Cue
	prev := 0
	for _, idx := range boundaries {
		if idx+1 <= prev {
			continue
		}
		sections = append(sections, tokens[prev:idx+1])
		prev = idx + 1
	}
	if prev < len(tokens) {
		sections = append(sections, tokens[prev:])
	}
	return sections
}

func dedupeInts(values []int) []int {
	out := values[:0]
	for i, v := range values {
		if i == 0 || v != values[i-1] {
			out = append(out, v)
		}
	}
	return out
}

func sectionText(tokens []Cue) string {
	var sb strings.Builder
	for _, tok := range tokens {
		sb.WriteString(tok.Text)
	}
	return strings.TrimSpace(sb.String())
}

func groupText(tokens []Cue) string {
	var sb strings.Builder
	for _, tok := range tokens {
		sb.WriteString(tok.Text)
	}
	return sb.String()
}

func mergeGroup(tokens []Cue) Cue {
	return Cue{
		Start: tokens[0].Start,
		End:   tokens[len(tokens)-1].End,
		Text:  groupText(tokens),
	}
}

// splitLongGroup recursively splits an over-wide token group at the
// largest silence in its middle two-thirds, falling back to the midpoint
// when no gap reaches minSplitGap.
func (s *Segmenter) splitLongGroup(tokens []Cue) []Cue {
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) == 1 || DisplayWidth(groupText(tokens)) <= s.maxDisplay {
		return []Cue{mergeGroup(tokens)}
	}
	n := len(tokens)
	lo := max(1, n/6)
	hi := min(n-1, 5*n/6)
	best := -1
	var maxGap time.Duration
	for i := lo; i <= hi; i++ {
		gap := tokens[i].Start - tokens[i-1].End
		if gap > maxGap {
			maxGap = gap
			best = i
		}
	}
	if best == -1 || maxGap < minSplitGap {
		best = n / 2
	}
	return append(s.splitLongGroup(tokens[:best]), s.splitLongGroup(tokens[best:])...)
}

// mergeShortCues repeatedly merges under-width cues into whichever
// neighbor is closer in time, until every cue meets the minimum or cannot
// be merged further. Merged cues lose any translation they carried.
func (s *Segmenter) mergeShortCues(cues []Cue) []Cue {
	result := make([]Cue, len(cues))
	copy(result, cues)

	changed := true
	for changed {
		changed = false
		i := 0
		for i < len(result) {
			if DisplayWidth(result[i].Text) >= s.minDisplay {
				i++
				continue
			}
			prevGap := time.Duration(1<<62 - 1)
			nextGap := time.Duration(1<<62 - 1)
			if i > 0 {
				prevGap = result[i].Start - result[i-1].End
			}
			if i < len(result)-1 {
				nextGap = result[i+1].Start - result[i].End
			}
			switch {
			case prevGap <= nextGap && i > 0:
				merged := Cue{
					Start: result[i-1].Start,
					End:   result[i].End,
					Text:  result[i-1].Text + result[i].Text,
				}
				result = append(result[:i-1], append([]Cue{merged}, result[i+1:]...)...)
				changed = true
			case nextGap < prevGap && i < len(result)-1:
				merged := Cue{
					Start: result[i].Start,
					End:   result[i+1].End,
					Text:  result[i].Text + result[i+1].Text,
				}
				result = append(result[:i], append([]Cue{merged}, result[i+2:]...)...)
				changed = true
			default:
				i++
			}
		}
	}
	return result
}

func wrapAborted(operation string, err error) error {
	marker := services.ErrCanceled
	if errors.Is(err, context.DeadlineExceeded) {
		marker = services.ErrTimeout
	}
	return services.Wrap(marker, "subtitles", operation, "aborted", err)
}
