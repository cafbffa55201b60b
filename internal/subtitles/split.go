package subtitles

import (
	"context"
	"strings"

	"vidgo/internal/services"
	"vidgo/internal/services/llm"
)

const (
	// maxCJKPerLine and maxWordsPerLine cap segment length for the
	// rule-based fallback splitter.
	maxCJKPerLine   = 12
	maxWordsPerLine = 20
)

// splitWithLLM asks the model to insert <br> breakpoints into a section of
// transcript text and returns the resulting fragments.
func splitWithLLM(ctx context.Context, client *llm.Client, text string) ([]string, error) {
	payload, err := client.CompleteJSONThinking(ctx, splitSystemPrompt, splitUserPrompt(text))
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Split string `json:"split"`
	}
	if err := llm.DecodeLLMJSON(payload, &parsed); err != nil {
		return nil, services.Wrap(services.ErrParse, "subtitles", "split_sentences",
			"segmentation response was not valid JSON", err)
	}
	var out []string
	for _, part := range strings.Split(parsed.Split, "<br>") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return nil, services.Wrap(services.ErrParse, "subtitles", "split_sentences",
			"segmentation response contained no fragments", nil)
	}
	return out, nil
}

var sentenceEnders = map[rune]bool{
	'。': true, '！': true, '？': true, '；': true,
	'.': true, '!': true, '?': true, ';': true,
}

var clauseSeparators = []string{"，", ","}

// ruleSplit breaks text on sentence punctuation, then chops oversized
// pieces at clause separators or fixed word counts. It is the fallback
// when the LLM splitter fails for a section.
func ruleSplit(text string) []string {
	var pieces []string
	var cur strings.Builder
	for _, r := range text {
		cur.WriteRune(r)
		if sentenceEnders[r] {
			pieces = append(pieces, cur.String())
			cur.Reset()
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		pieces = append(pieces, cur.String())
	}

	var out []string
	for _, piece := range pieces {
		out = append(out, chopPiece(strings.TrimSpace(piece))...)
	}
	return out
}

func chopPiece(piece string) []string {
	if piece == "" {
		return nil
	}
	if CountWords(piece) <= maxWordsPerLine {
		return []string{piece}
	}
	for _, sep := range clauseSeparators {
		if strings.Contains(piece, sep) {
			var out []string
			for _, part := range strings.SplitAfter(piece, sep) {
				out = append(out, chopFixed(strings.TrimSpace(part))...)
			}
			return out
		}
	}
	return chopFixed(piece)
}

// chopFixed cuts a punctuation-free piece into fixed-size chunks: by word
// for spaced text, by rune count for CJK runs.
func chopFixed(piece string) []string {
	if piece == "" {
		return nil
	}
	if CountWords(piece) <= maxWordsPerLine {
		return []string{piece}
	}
	if fields := strings.Fields(piece); len(fields) > 1 {
		var out []string
		for start := 0; start < len(fields); start += maxWordsPerLine {
			end := min(start+maxWordsPerLine, len(fields))
			out = append(out, strings.Join(fields[start:end], " "))
		}
		return out
	}
	runes := []rune(piece)
	var out []string
	for start := 0; start < len(runes); start += maxCJKPerLine {
		end := min(start+maxCJKPerLine, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}
