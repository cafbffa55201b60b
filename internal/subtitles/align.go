package subtitles

import "strings"

const (
	// alignThreshold is the minimum similarity for a sentence to claim a
	// token window.
	alignThreshold = 0.5
	// alignMaxShift bounds how far forward the window start may slide past
	// the current cursor.
	alignMaxShift = 10
)

// alignSentences maps LLM-produced sentences back onto the token timeline.
// For each sentence it slides a window over the tokens, trying window sizes
// closest to the sentence's word count first, and claims the best-matching
// span. Sentences that never reach the similarity threshold are dropped and
// the cursor advances by one token so later sentences can still match.
func alignSentences(tokens []Cue, sentences []string) [][]Cue {
	texts := make([]string, len(tokens))
	for i, tok := range tokens {
		texts[i] = tok.Text
	}
	tokenCount := len(tokens)
	cursor := 0

	var groups [][]Cue
	for _, sentence := range sentences {
		if cursor >= tokenCount {
			break
		}
		want := normalizeForMatch(sentence)
		if want == "" {
			continue
		}
		wordCount := CountWords(want)

		bestRatio := 0.0
		bestPos := -1
		bestSize := 0

		minSize := max(1, wordCount/2)
		maxSize := min(wordCount*2, tokenCount-cursor)
		for _, size := range windowSizes(minSize, maxSize, wordCount) {
			maxStart := min(cursor+alignMaxShift+1, tokenCount-size+1)
			for start := cursor; start < maxStart; start++ {
				got := normalizeForMatch(strings.Join(texts[start:start+size], ""))
				ratio := matchRatio(want, got)
				if ratio > bestRatio {
					bestRatio = ratio
					bestPos = start
					bestSize = size
				}
				if ratio == 1.0 {
					break
				}
			}
			if bestRatio == 1.0 {
				break
			}
		}

		if bestRatio >= alignThreshold && bestPos >= 0 {
			groups = append(groups, tokens[bestPos:bestPos+bestSize])
			cursor = bestPos + bestSize
		} else {
			cursor++
		}
	}
	return groups
}

// windowSizes lists candidate window sizes ordered by distance from the
// target word count.
func windowSizes(minSize, maxSize, target int) []int {
	if maxSize < minSize {
		return nil
	}
	sizes := make([]int, 0, maxSize-minSize+1)
	for size := minSize; size <= maxSize; size++ {
		sizes = append(sizes, size)
	}
	for i := 1; i < len(sizes); i++ {
		for j := i; j > 0; j-- {
			a, b := sizes[j-1], sizes[j]
			if abs(a-target) <= abs(b-target) {
				break
			}
			sizes[j-1], sizes[j] = b, a
		}
	}
	return sizes
}

// normalizeForMatch lowercases and collapses whitespace before comparison.
func normalizeForMatch(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// matchRatio scores similarity as 2*lcs/(len(a)+len(b)) over runes, where
// lcs is the longest common subsequence length.
func matchRatio(a, b string) float64 {
	ar := []rune(a)
	br := []rune(b)
	if len(ar) == 0 && len(br) == 0 {
		return 1
	}
	if len(ar) == 0 || len(br) == 0 {
		return 0
	}
	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for i := 1; i <= len(ar); i++ {
		for j := 1; j <= len(br); j++ {
			switch {
			case ar[i-1] == br[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
		for j := range curr {
			curr[j] = 0
		}
	}
	return 2 * float64(prev[len(br)]) / float64(len(ar)+len(br))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
