package models

// PlayMethod is how the stream reaches the device.
type PlayMethod string

const (
	PlayMethodDirectPlay PlayMethod = "DirectPlay"
	PlayMethodTranscode  PlayMethod = "Transcode"
)

// SubtitleSelection is the side-band subtitle chosen for a plan. BurnedIn
// selections are rendered by the transcoder; offset adjustment does not apply.
type SubtitleSelection struct {
	Stream   MediaStream `json:"stream"`
	BurnedIn bool        `json:"burnedIn"`
}

// StreamPlan is the result of plan building: everything needed to start the
// engine and report progress against the right server-side session.
type StreamPlan struct {
	URL           string             `json:"url"`
	Method        PlayMethod         `json:"method"`
	Source        MediaSource        `json:"source"`
	PlaySessionID string             `json:"playSessionId"`
	Subtitle      *SubtitleSelection `json:"subtitle,omitempty"`
	Anamorphic    bool               `json:"anamorphic"`
}

// PlaybackSession is the single live session owned by the controller.
type PlaybackSession struct {
	Item             MediaItem  `json:"item"`
	Plan             StreamPlan `json:"plan"`
	AudioIndex       *int       `json:"audioIndex,omitempty"`
	SubtitleIndex    *int       `json:"subtitleIndex,omitempty"`
	SubtitleOffsetMs int        `json:"subtitleOffsetMs"`
}
