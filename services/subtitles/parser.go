package subtitles

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"couchplay/models"
)

// ErrNoCues is returned when parsing yields nothing usable. Callers fall back
// to the engine's native subtitle renderer.
var ErrNoCues = errors.New("no subtitle cues parsed")

// minCueDurationMs pads cues whose end does not advance past their start.
const minCueDurationMs = 500

var (
	timingRe = regexp.MustCompile(`(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})`)
	styleRe  = regexp.MustCompile(`\{\\?[^}]*\}`)
	brRe     = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
)

// ParseSRT parses SubRip text into cues sorted by start time. Blocks are
// separated by blank lines; a block without a parseable timing line is
// skipped, not fatal.
func ParseSRT(raw string) ([]models.SubtitleCue, error) {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.TrimPrefix(normalized, "\ufeff")

	var cues []models.SubtitleCue
	for _, block := range strings.Split(normalized, "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) == 0 {
			continue
		}

		timingIdx := -1
		var match []string
		for i, line := range lines {
			if m := timingRe.FindStringSubmatch(line); m != nil {
				timingIdx = i
				match = m
				break
			}
		}
		if timingIdx < 0 || timingIdx == len(lines)-1 {
			continue
		}

		start := timestampMs(match[1], match[2], match[3], match[4])
		end := timestampMs(match[5], match[6], match[7], match[8])
		if end <= start {
			end = start + minCueDurationMs
		}

		text := cleanCueText(lines[timingIdx+1:])
		if text == "" {
			continue
		}
		cues = append(cues, models.SubtitleCue{StartMs: start, EndMs: end, Text: text})
	}

	if len(cues) == 0 {
		return nil, ErrNoCues
	}
	sort.Slice(cues, func(i, j int) bool { return cues[i].StartMs < cues[j].StartMs })
	return cues, nil
}

func timestampMs(h, m, s, ms string) int64 {
	hours, _ := strconv.ParseInt(h, 10, 64)
	mins, _ := strconv.ParseInt(m, 10, 64)
	secs, _ := strconv.ParseInt(s, 10, 64)
	// pad to milliseconds, "5" means 500ms
	for len(ms) < 3 {
		ms += "0"
	}
	millis, _ := strconv.ParseInt(ms, 10, 64)
	return ((hours*60+mins)*60+secs)*1000 + millis
}

func cleanCueText(lines []string) string {
	var out []string
	for _, line := range lines {
		line = styleRe.ReplaceAllString(line, "")
		line = brRe.ReplaceAllString(line, "\n")
		line = tagRe.ReplaceAllString(line, "")
		line = html.UnescapeString(line)
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
