package subtitles

import (
	_ "embed"
	"regexp"
	"strings"
)

//go:embed wordlist.txt
var embeddedWordList string

var (
	cjkRunRe      = regexp.MustCompile(`[\x{4e00}-\x{9fff}\x{3040}-\x{309f}\x{30a0}-\x{30ff}\x{ac00}-\x{d7af}]`)
	asciiRunRe    = regexp.MustCompile(`[a-zA-Z]`)
	fragmentRunRe = regexp.MustCompile(`[a-zA-Z]+(?:\s+[a-zA-Z]+)*`)
)

// maxMergeSpan bounds how many fragments a single word may be rebuilt from.
const maxMergeSpan = 4

// WordMerger rejoins English words that a CJK-focused recognizer split
// into graphemes, e.g. "rem ote 仓库" back to "remote 仓库". Lookup runs
// against an embedded dictionary; only lines mixing CJK and ASCII text are
// touched so pure-English spacing survives.
type WordMerger struct {
	words map[string]struct{}
}

// NewWordMerger builds a merger from the embedded dictionary plus any
// extra words, lowercased.
func NewWordMerger(extra ...string) *WordMerger {
	m := &WordMerger{words: make(map[string]struct{}, 1024)}
	for _, line := range strings.Split(embeddedWordList, "\n") {
		word := strings.TrimSpace(line)
		if word != "" {
			m.words[strings.ToLower(word)] = struct{}{}
		}
	}
	m.AddWords(extra...)
	return m
}

// AddWords registers additional dictionary words.
func (m *WordMerger) AddWords(words ...string) {
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word != "" {
			m.words[word] = struct{}{}
		}
	}
}

func (m *WordMerger) isWord(candidate string) bool {
	_, ok := m.words[strings.ToLower(candidate)]
	return ok
}

// MergeText rebuilds fragmented English words inside text when it mixes
// CJK and ASCII content. Text without that mix is returned unchanged.
func (m *WordMerger) MergeText(text string) string {
	if !cjkRunRe.MatchString(text) || !asciiRunRe.MatchString(text) {
		return text
	}
	matches := fragmentRunRe.FindAllStringIndex(text, -1)
	// Replace back to front so earlier offsets stay valid.
	for i := len(matches) - 1; i >= 0; i-- {
		start, end := matches[i][0], matches[i][1]
		fragment := text[start:end]
		if !strings.ContainsAny(fragment, " \t") {
			continue
		}
		text = text[:start] + m.mergeFragment(fragment) + text[end:]
	}
	return text
}

// mergeFragment greedily joins consecutive fragments into the longest
// dictionary word, keeping unmergeable pieces as they are.
func (m *WordMerger) mergeFragment(fragment string) string {
	parts := strings.Fields(fragment)
	if len(parts) <= 1 {
		return fragment
	}
	var out []string
	for i := 0; i < len(parts); {
		best := parts[i]
		span := 1
		for length := 2; length <= maxMergeSpan && i+length <= len(parts); length++ {
			candidate := strings.Join(parts[i:i+length], "")
			if m.isWord(candidate) {
				best = candidate
				span = length
			}
		}
		out = append(out, best)
		i += span
	}
	return strings.Join(out, " ")
}
