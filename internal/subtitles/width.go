package subtitles

import (
	"regexp"
	"strings"
)

// asciiPunct is the punctuation set that renders at half width.
const asciiPunct = ".,;:!?\"'()[]{}/-_+=*&^%$#@~`|\\<>"

func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK unified ideographs
		return true
	case r >= 0x3400 && r <= 0x4DBF: // CJK extension A
		return true
	case r >= 0x3040 && r <= 0x309F: // hiragana
		return true
	case r >= 0x30A0 && r <= 0x30FF: // katakana
		return true
	case r >= 0x31F0 && r <= 0x31FF: // katakana phonetic extensions
		return true
	case r >= 0xAC00 && r <= 0xD7AF: // hangul syllables
		return true
	case r >= 0x1100 && r <= 0x11FF: // hangul jamo
		return true
	case r >= 0x3130 && r <= 0x318F: // hangul compatibility jamo
		return true
	}
	return false
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func runeDisplayWidth(r rune) float64 {
	switch {
	case isCJK(r):
		return 1.75
	case isASCIILetter(r) || isASCIIDigit(r):
		return 1.0
	case r == ' ' || strings.ContainsRune(asciiPunct, r):
		return 0.5
	default:
		return 1.0
	}
}

// DisplayWidth measures the rendered width of a subtitle line. CJK glyphs
// count 1.75, ASCII letters and digits 1.0, spaces and ASCII punctuation
// 0.5. A non-final token ending in an ASCII character implies a rendered
// space, which adds another 0.5.
func DisplayWidth(text string) float64 {
	tokens := strings.Fields(text)
	var total float64
	for i, token := range tokens {
		var last rune
		for _, r := range token {
			total += runeDisplayWidth(r)
			last = r
		}
		if i < len(tokens)-1 &&
			(isASCIILetter(last) || isASCIIDigit(last) || strings.ContainsRune(asciiPunct, last)) {
			total += 0.5
		}
	}
	return total
}

var asciiWordRe = regexp.MustCompile(`\b[a-zA-Z]{2,}\b`)

// CountWords counts words in mixed-language text: every CJK rune is one
// word, plus each run of two or more ASCII letters.
func CountWords(text string) int {
	count := 0
	var rest strings.Builder
	for _, r := range text {
		if isCJK(r) {
			count++
			rest.WriteRune(' ')
			continue
		}
		rest.WriteRune(r)
	}
	count += len(asciiWordRe.FindAllString(strings.ToLower(rest.String()), -1))
	return count
}
