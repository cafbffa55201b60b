package subtitles

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"vidgo/internal/services"
)

// Cue is a single subtitle entry. Start and End are offsets from the
// beginning of the media. Translation stays empty until a translation
// pass has run.
type Cue struct {
	Start       time.Duration
	End         time.Duration
	Text        string
	Translation string
}

// Duration returns the on-screen time of the cue.
func (c Cue) Duration() time.Duration {
	return c.End - c.Start
}

// ParseSRT parses SRT content into cues. Malformed blocks are skipped
// rather than failing the whole file; hand-edited and tool-generated
// subtitles are routinely sloppy about indices and blank lines.
func ParseSRT(content string) []Cue {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	blocks := strings.Split(strings.TrimSpace(content), "\n\n")
	var cues []Cue
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			continue
		}
		// The leading index line is optional; some tools omit it.
		timing := lines[0]
		textStart := 1
		if !strings.Contains(timing, "-->") {
			if len(lines) < 3 || !strings.Contains(lines[1], "-->") {
				continue
			}
			timing = lines[1]
			textStart = 2
		}
		parts := strings.Split(timing, "-->")
		if len(parts) != 2 {
			continue
		}
		start, err := ParseTimestamp(parts[0])
		if err != nil {
			continue
		}
		end, err := ParseTimestamp(parts[1])
		if err != nil {
			continue
		}
		cues = append(cues, Cue{
			Start: start,
			End:   end,
			Text:  strings.Join(lines[textStart:], "\n"),
		})
	}
	return cues
}

// ReadSRT loads and parses an SRT file.
func ReadSRT(path string) ([]Cue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "subtitles", "read_srt", "read subtitle file", err)
	}
	cues := ParseSRT(string(data))
	if len(cues) == 0 {
		return nil, services.Wrap(services.ErrParse, "subtitles", "read_srt",
			fmt.Sprintf("no cues parsed from %s", filepath.Base(path)), nil)
	}
	return cues, nil
}

// FormatSRT renders cues as SRT using the original text, renumbering
// from 1.
func FormatSRT(cues []Cue) string {
	return formatSRT(cues, false)
}

// FormatTranslationSRT renders cues as SRT using the translated text.
// Cues without a translation fall back to the original text so the
// entry count and timeline never change.
func FormatTranslationSRT(cues []Cue) string {
	return formatSRT(cues, true)
}

func formatSRT(cues []Cue, useTranslation bool) string {
	var sb strings.Builder
	for i, cue := range cues {
		if i > 0 {
			sb.WriteString("\n")
		}
		text := cue.Text
		if useTranslation && strings.TrimSpace(cue.Translation) != "" {
			text = cue.Translation
		}
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n",
			i+1, FormatTimestamp(cue.Start), FormatTimestamp(cue.End), strings.TrimSpace(text))
	}
	return sb.String()
}

// WriteSRT atomically writes cues to path using the original text.
func WriteSRT(path string, cues []Cue) error {
	return writeSRT(path, FormatSRT(cues))
}

// WriteTranslationSRT atomically writes cues to path using the
// translated text.
func WriteTranslationSRT(path string, cues []Cue) error {
	return writeSRT(path, FormatTranslationSRT(cues))
}

func writeSRT(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return services.Wrap(services.ErrUnavailable, "subtitles", "write_srt", "create subtitle directory", err)
	}
	if err := renameio.WriteFile(path, []byte(content), 0o644); err != nil {
		return services.Wrap(services.ErrUnavailable, "subtitles", "write_srt", "write subtitle file", err)
	}
	return nil
}

// ParseTimestamp parses an SRT timestamp (HH:MM:SS,mmm). A period before
// the milliseconds is tolerated since WebVTT-leaning tools emit it.
func ParseTimestamp(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	total := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond
	return total, nil
}

// FormatTimestamp renders a duration as an SRT timestamp.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	hours := ms / 3_600_000
	ms -= hours * 3_600_000
	minutes := ms / 60_000
	ms -= minutes * 60_000
	seconds := ms / 1000
	ms -= seconds * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, ms)
}
