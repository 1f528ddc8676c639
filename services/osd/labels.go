package osd

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"couchplay/models"
)

// TrackLabel builds the overlay list label for an audio or subtitle stream.
// The server's DisplayTitle wins when present.
func TrackLabel(s models.MediaStream) string {
	if s.DisplayTitle != "" {
		return s.DisplayTitle
	}

	parts := []string{languageName(s.Language)}
	if s.Codec != "" {
		parts = append(parts, strings.ToUpper(s.Codec))
	}
	if s.Type == models.StreamTypeAudio {
		if layout := channelLayout(s.Channels); layout != "" {
			parts = append(parts, layout)
		}
	}
	if s.IsExternal {
		parts = append(parts, "External")
	}
	if s.IsForced {
		parts = append(parts, "Forced")
	}
	return strings.Join(parts, " ")
}

func languageName(code string) string {
	if code == "" {
		return "Unknown"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return code
	}
	return name
}

func channelLayout(channels int) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	case 6:
		return "5.1"
	case 8:
		return "7.1"
	}
	return ""
}
