package renderer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/livepeer/clip-job-server/job"
)

const maxLineRunes = 20

// lineWrap splits text into lines of at most maxLineRunes runes. Every rune
// counts as one, whatever its display width: a full-width character is not
// weighted as two half-width ones. Breaks preferentially on whitespace;
// falls back to a hard break when a single word exceeds the limit.
func lineWrap(text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}

	var lines []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, word := range fields {
		wordLen := utf8.RuneCountInString(word)
		for wordLen > maxLineRunes {
			flush()
			head := string([]rune(word)[:maxLineRunes])
			lines = append(lines, head)
			word = string([]rune(word)[maxLineRunes:])
			wordLen = utf8.RuneCountInString(word)
		}

		sep := 0
		if currentLen > 0 {
			sep = 1
		}
		if currentLen+sep+wordLen > maxLineRunes {
			flush()
			sep = 0
		}
		if sep == 1 {
			current.WriteString(" ")
		}
		current.WriteString(word)
		currentLen += sep + wordLen
	}
	flush()
	return lines
}

// formatASSTime renders seconds as ASS's H:MM:SS.cc timestamp.
func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	centis := int(seconds*100 + 0.5)
	cs := centis % 100
	totalSeconds := centis / 100
	s := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	m := totalMinutes % 60
	h := totalMinutes / 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}

// buildASS renders an Advanced SubStation Alpha subtitle track for the
// transcript segments intersecting [rangeStart, rangeEnd), clipped and
// re-timed relative to the clip's own start, positioned centered in the
// lower letterbox region.
func buildASS(segments []job.TranscriptSegment, rangeStart, rangeEnd float64, style job.SubtitleStyle) string {
	var sb strings.Builder
	sb.WriteString("[Script Info]\nScriptType: v4.00+\nPlayResX: 1080\nPlayResY: 1920\n\n")
	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, OutlineColour, Bold, Alignment, MarginL, MarginR, MarginV\n")
	fmt.Fprintf(&sb, "Style: Default,%s,%.0f,%s,%s,0,2,60,60,180\n\n", style.FontFamily, style.FontSize, style.FillColor, style.OutlineColor)
	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Text\n")

	for _, seg := range segments {
		start := seg.Start - rangeStart
		end := seg.End - rangeStart
		if end <= 0 || start >= (rangeEnd-rangeStart) {
			continue
		}
		if start < 0 {
			start = 0
		}
		if end > rangeEnd-rangeStart {
			end = rangeEnd - rangeStart
		}

		lines := lineWrap(seg.Text)
		if len(lines) == 0 {
			continue
		}
		text := strings.Join(lines, "\\N")
		fmt.Fprintf(&sb, "Dialogue: 0,%s,%s,Default,%s\n", formatASSTime(start), formatASSTime(end), text)
	}

	return sb.String()
}
