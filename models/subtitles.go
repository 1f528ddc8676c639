package models

// SubtitleCue is one parsed subtitle block. Times are milliseconds from the
// start of the item; a cue is active for start <= position <= end.
type SubtitleCue struct {
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
	Text    string `json:"text"`
}
