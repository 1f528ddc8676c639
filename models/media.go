package models

// TicksPerMillisecond is the server's tick resolution (100ns ticks).
const TicksPerMillisecond = 10_000

// MediaItem is a playable library item (movie or episode).
type MediaItem struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Type                string `json:"type"` // Movie | Episode
	SeriesID            string `json:"seriesId,omitempty"`
	SeriesName          string `json:"seriesName,omitempty"`
	SeasonID            string `json:"seasonId,omitempty"`
	SeasonNumber        int    `json:"seasonNumber,omitempty"`
	EpisodeNumber       int    `json:"episodeNumber,omitempty"`
	RuntimeTicks        int64  `json:"runtimeTicks"`
	ResumePositionTicks int64  `json:"resumePositionTicks"`
	Played              bool   `json:"played"`
}

func (m MediaItem) IsEpisode() bool {
	return m.Type == "Episode"
}

func (m MediaItem) RuntimeMs() int64 {
	return m.RuntimeTicks / TicksPerMillisecond
}

func (m MediaItem) ResumeMs() int64 {
	return m.ResumePositionTicks / TicksPerMillisecond
}

// StreamType identifies the kind of a MediaStream.
type StreamType string

const (
	StreamTypeVideo    StreamType = "Video"
	StreamTypeAudio    StreamType = "Audio"
	StreamTypeSubtitle StreamType = "Subtitle"
)

// MediaStream is one elementary stream inside a MediaSource. Index is the
// server's stream index, not a playback-engine track index.
type MediaStream struct {
	Index        int        `json:"index"`
	Type         StreamType `json:"type"`
	Codec        string     `json:"codec"`
	Language     string     `json:"language,omitempty"`
	DisplayTitle string     `json:"displayTitle,omitempty"`
	IsDefault    bool       `json:"isDefault"`
	IsExternal   bool       `json:"isExternal"`
	IsForced     bool       `json:"isForced"`
	Channels     int        `json:"channels,omitempty"`
	Width        int        `json:"width,omitempty"`
	Height       int        `json:"height,omitempty"`
	AspectRatio  string     `json:"aspectRatio,omitempty"`
	DeliveryURL  string     `json:"deliveryUrl,omitempty"`
}

// MediaSource is one playable rendition of an item as reported by the server.
type MediaSource struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name,omitempty"`
	Container           string        `json:"container,omitempty"`
	SupportsDirectPlay  bool          `json:"supportsDirectPlay"`
	SupportsTranscoding bool          `json:"supportsTranscoding"`
	TranscodingURL      string        `json:"transcodingUrl,omitempty"`
	Streams             []MediaStream `json:"streams"`
}

// StreamsOfType returns the source's streams of one type, in server order.
func (s MediaSource) StreamsOfType(t StreamType) []MediaStream {
	var out []MediaStream
	for _, st := range s.Streams {
		if st.Type == t {
			out = append(out, st)
		}
	}
	return out
}

// StreamByIndex finds a stream by its server index.
func (s MediaSource) StreamByIndex(index int) (MediaStream, bool) {
	for _, st := range s.Streams {
		if st.Index == index {
			return st, true
		}
	}
	return MediaStream{}, false
}

// VideoStream returns the first video stream, if any.
func (s MediaSource) VideoStream() (MediaStream, bool) {
	for _, st := range s.Streams {
		if st.Type == StreamTypeVideo {
			return st, true
		}
	}
	return MediaStream{}, false
}
