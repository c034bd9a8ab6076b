package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/asticode/go-astisub"

	"github.com/MimeLyc/movie-dubber/pkg/log"
)

var timestampRe = regexp.MustCompile(`^(\d{1,3}):(\d{2}):(\d{2})(?:[,.](\d{1,3}))?$`)

// ToMillis converts "HH:MM:SS,mmm" (a '.' separator is accepted too) to milliseconds.
func ToMillis(ts string) (int64, error) {
	matches := timestampRe.FindStringSubmatch(strings.TrimSpace(ts))
	if matches == nil {
		return 0, fmt.Errorf("invalid timestamp: %q", ts)
	}
	h, _ := strconv.ParseInt(matches[1], 10, 64)
	m, _ := strconv.ParseInt(matches[2], 10, 64)
	s, _ := strconv.ParseInt(matches[3], 10, 64)
	if m > 59 || s > 59 {
		return 0, fmt.Errorf("invalid timestamp: %q", ts)
	}

	var ms int64
	if frac := matches[4]; frac != "" {
		// "5" means 500ms, "05" means 50ms
		for len(frac) < 3 {
			frac += "0"
		}
		ms, _ = strconv.ParseInt(frac, 10, 64)
	}
	return ((h*60+m)*60+s)*1000 + ms, nil
}

// ToTimestamp renders milliseconds as "HH:MM:SS" for display. Sub-second precision is dropped.
func ToTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// FormatTimestamp renders d as a full-precision "HH:MM:SS,mmm".
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3600000, (ms/60000)%60, (ms/1000)%60, ms%1000)
}

// ParseTrack parses SRT or WebVTT text into cues in file order.
// Malformed blocks are dropped.
func ParseTrack(text string) []Cue {
	text = strings.TrimPrefix(text, "\ufeff")
	if strings.HasPrefix(strings.TrimSpace(text), "WEBVTT") {
		return parseWebVTT(text)
	}
	return parseSRT(text)
}

// parseSRT walks the lines block by block. An integer line only counts as an index
// when the next line is a timing line, so numeric cue text is kept as text.
func parseSRT(text string) []Cue {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	isTiming := func(i int) bool {
		return i < len(lines) && strings.Contains(lines[i], "-->")
	}
	isIndex := func(i int) bool {
		if i >= len(lines) {
			return false
		}
		if _, err := strconv.Atoi(lines[i]); err != nil {
			return false
		}
		return isTiming(i + 1)
	}

	var cues []Cue
	var current *Cue
	var textLines []string

	flush := func() {
		if current != nil && len(textLines) > 0 {
			current.Text = strings.Join(textLines, "\n")
			cues = append(cues, *current)
		}
		current = nil
		textLines = nil
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if current == nil {
			switch {
			case line == "":
			case isIndex(i):
			case isTiming(i):
				start, end, err := parseTimingLine(line)
				if err != nil {
					log.Debug("dropping subtitle block at line %d: %v", i+1, err)
					continue
				}
				current = &Cue{Start: start, End: end}
			}
			continue
		}

		switch {
		case line == "":
			flush()
		case isIndex(i):
			// next block started without a separating blank line
			flush()
		default:
			textLines = append(textLines, line)
		}
	}
	flush()
	return cues
}

func parseTimingLine(line string) (time.Duration, time.Duration, error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid timing line: %q", line)
	}
	startMs, err := ToMillis(parts[0])
	if err != nil {
		return 0, 0, err
	}
	// WebVTT-style cue settings may follow the end timestamp.
	endField := strings.Fields(parts[1])
	if len(endField) == 0 {
		return 0, 0, fmt.Errorf("missing end timestamp: %q", line)
	}
	endMs, err := ToMillis(endField[0])
	if err != nil {
		return 0, 0, err
	}
	if endMs <= startMs {
		return 0, 0, fmt.Errorf("cue ends before it starts: %q", line)
	}
	return time.Duration(startMs) * time.Millisecond, time.Duration(endMs) * time.Millisecond, nil
}

func parseWebVTT(text string) []Cue {
	subs, err := astisub.ReadFromWebVTT(strings.NewReader(text))
	if err != nil {
		log.Warn("failed to parse WebVTT track: %v", err)
		return nil
	}

	cues := make([]Cue, 0, len(subs.Items))
	for _, item := range subs.Items {
		if item == nil || item.EndAt <= item.StartAt {
			continue
		}
		textLines := make([]string, 0, len(item.Lines))
		for _, l := range item.Lines {
			if s := strings.TrimSpace(l.String()); s != "" {
				textLines = append(textLines, s)
			}
		}
		if len(textLines) == 0 {
			continue
		}
		cues = append(cues, Cue{
			Start: item.StartAt.Truncate(time.Millisecond),
			End:   item.EndAt.Truncate(time.Millisecond),
			Text:  strings.Join(textLines, "\n"),
		})
	}
	return cues
}

// WriteSRT writes cues as an SRT document, numbering from 1.
func WriteSRT(w io.Writer, cues []Cue) error {
	writer := bufio.NewWriter(w)
	for i, cue := range cues {
		if _, err := fmt.Fprintf(writer, "%d\n%s --> %s\n%s\n\n",
			i+1, FormatTimestamp(cue.Start), FormatTimestamp(cue.End), cue.Text); err != nil {
			return err
		}
	}
	return writer.Flush()
}
