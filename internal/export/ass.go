package export

import (
	"fmt"
	"strings"

	"vidgo/internal/config"
	"vidgo/internal/subtitles"
)

// Style carries burn-in styling for both subtitle tracks. Colours are ASS
// &HAABBGGRR strings.
type Style struct {
	FontName    string
	FontSize    int
	Colour      string
	Bold        bool
	Outline     int
	Shadow      int
	MarginV     int
	SecondColor string
	SecondSize  int
}

// StyleFromConfig seeds a Style from the configured export defaults.
func StyleFromConfig(cfg *config.Config) Style {
	return Style{
		FontName:    cfg.Export.FontName,
		FontSize:    cfg.Export.FontSize,
		Colour:      cfg.Export.Colour,
		Bold:        cfg.Export.Bold,
		Outline:     cfg.Export.Outline,
		Shadow:      cfg.Export.Shadow,
		MarginV:     cfg.Export.MarginV,
		SecondColor: cfg.Export.SecondColor,
		SecondSize:  cfg.Export.SecondSize,
	}
}

// buildASS renders the full ASS script: header sized to the video, one
// style per requested track, and dialogue lines from the cue lists.
// Translated lines reuse the raw track's timing when both are shown.
func buildASS(title string, width, height int, style Style, subtitleType SubtitleType, raw, translated []subtitles.Cue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Script Info]\nTitle: %s\nScriptType: v4.00+\nPlayResX: %d\nPlayResY: %d\nScaledBorderAndShadow: yes\n\n", title, width, height)
	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")

	bold := 0
	if style.Bold {
		bold = -1
	}
	if subtitleType != SubtitleTranslated {
		fmt.Fprintf(&b, "Style: Raw,%s,%d,%s,%s,&H00000000,&H00000000,%d,0,0,0,100,100,0,0,1,%d,%d,2,0,0,%d,1\n",
			style.FontName, style.FontSize, style.Colour, style.Colour,
			bold, style.Outline, style.Shadow, style.MarginV)
	}
	if subtitleType != SubtitleRaw {
		// The second track sits above the first.
		margin := style.MarginV
		if subtitleType == SubtitleBoth {
			margin += 2 * style.FontSize
		}
		fmt.Fprintf(&b, "Style: Second,%s,%d,%s,%s,&H00000000,&H00000000,%d,0,0,0,100,100,0,0,1,%d,%d,2,0,0,%d,1\n",
			style.FontName, style.SecondSize, style.SecondColor, style.SecondColor,
			bold, style.Outline, style.Shadow, margin)
	}

	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	switch subtitleType {
	case SubtitleRaw:
		writeDialogue(&b, "Raw", raw, false)
	case SubtitleTranslated:
		writeDialogue(&b, "Second", translated, false)
	case SubtitleBoth:
		for i, cue := range raw {
			writeLine(&b, "Raw", cue.Start.Seconds(), cue.End.Seconds(), cue.Text)
			if i < len(translated) {
				writeLine(&b, "Second", cue.Start.Seconds(), cue.End.Seconds(), translated[i].Text)
			}
		}
	}
	return b.String()
}

func writeDialogue(b *strings.Builder, styleName string, cues []subtitles.Cue, useTranslation bool) {
	for _, cue := range cues {
		text := cue.Text
		if useTranslation && cue.Translation != "" {
			text = cue.Translation
		}
		writeLine(b, styleName, cue.Start.Seconds(), cue.End.Seconds(), text)
	}
}

func writeLine(b *strings.Builder, styleName string, start, end float64, text string) {
	text = strings.ReplaceAll(text, "\n", `\N`)
	fmt.Fprintf(b, "Dialogue: 0,%s,%s,%s,,0,0,0,,%s\n", assTime(start), assTime(end), styleName, text)
}

// assTime formats seconds as the H:MM:SS.CC ASS clock.
func assTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	centis := int((seconds - float64(total)) * 100)
	return fmt.Sprintf("%d:%02d:%02d.%02d", total/3600, (total%3600)/60, total%60, centis)
}
