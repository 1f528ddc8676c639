package playback

import (
	"fmt"

	"couchplay/models"
	"couchplay/services/osd"
)

// TrackInfo is one selectable track as rendered in the overlay lists.
type TrackInfo struct {
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

// Snapshot is everything the frontend needs to render the player screen.
type Snapshot struct {
	Active   bool              `json:"active"`
	Item     *models.MediaItem `json:"item,omitempty"`
	Method   string            `json:"method,omitempty"`
	Paused   bool              `json:"paused"`
	Seeking  bool              `json:"seeking"`
	Finished bool              `json:"finished"`

	PositionMs   int64   `json:"positionMs"`
	DurationMs   int64   `json:"durationMs"`
	PositionText string  `json:"positionText"`
	DurationText string  `json:"durationText"`
	Progress     float64 `json:"progress"`

	OSDMode         string `json:"osdMode"`
	FocusRow        int    `json:"focusRow"`
	ButtonIndex     int    `json:"buttonIndex"`
	ListIndex       int    `json:"listIndex"`
	OffsetAdjust    bool   `json:"offsetAdjust"`
	SeekPreviewMs   int64  `json:"seekPreviewMs"`
	SeekPreviewText string `json:"seekPreviewText"`

	AudioTracks      []TrackInfo `json:"audioTracks,omitempty"`
	SubtitleTracks   []TrackInfo `json:"subtitleTracks,omitempty"`
	ActiveCue        string      `json:"activeCue,omitempty"`
	SubtitleOffsetMs int64       `json:"subtitleOffsetMs"`

	Anamorphic  bool              `json:"anamorphic,omitempty"`
	NextEpisode *models.MediaItem `json:"nextEpisode,omitempty"`
}

// Status reports the current session for frontend rendering.
func (s *Service) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return Snapshot{OSDMode: osd.ModeHidden.String()}
	}

	pos := s.engine.PositionMs()
	dur := s.durationMsLocked()

	snap := Snapshot{
		Active:          true,
		Item:            &s.session.Item,
		Method:          string(s.session.Plan.Method),
		Paused:          s.engine.Paused(),
		Seeking:         s.seeking,
		Finished:        s.reporter.Finished(),
		PositionMs:      pos,
		DurationMs:      dur,
		PositionText:    formatDuration(pos),
		DurationText:    formatDuration(dur),
		OSDMode:         s.osdState.Mode.String(),
		FocusRow:        int(s.osdState.Focus),
		ButtonIndex:     s.osdState.ButtonIndex,
		ListIndex:       s.osdState.ListIndex,
		OffsetAdjust:    s.osdState.OffsetAdjust,
		SeekPreviewMs:   s.osdState.SeekPreviewMs,
		SeekPreviewText: formatDuration(s.osdState.SeekPreviewMs),
		ActiveCue:       s.activeCue,
		Anamorphic:      s.session.Plan.Anamorphic,
		NextEpisode:     s.nextItem,
	}
	if dur > 0 {
		snap.Progress = float64(pos) / float64(dur)
	}
	if s.session.SubtitleIndex != nil {
		snap.SubtitleOffsetMs = int64(s.session.SubtitleOffsetMs)
	}

	for i, st := range s.session.Plan.Source.StreamsOfType(models.StreamTypeAudio) {
		active := false
		if s.session.AudioIndex != nil {
			active = *s.session.AudioIndex == st.Index
		} else {
			active = st.IsDefault || i == 0 && !hasDefault(s.session.Plan.Source, models.StreamTypeAudio)
		}
		snap.AudioTracks = append(snap.AudioTracks, TrackInfo{Label: osd.TrackLabel(st), Active: active})
	}
	for _, st := range s.session.Plan.Source.StreamsOfType(models.StreamTypeSubtitle) {
		active := s.session.SubtitleIndex != nil && *s.session.SubtitleIndex == st.Index
		snap.SubtitleTracks = append(snap.SubtitleTracks, TrackInfo{Label: osd.TrackLabel(st), Active: active})
	}
	return snap
}

func hasDefault(src models.MediaSource, t models.StreamType) bool {
	for _, st := range src.StreamsOfType(t) {
		if st.IsDefault {
			return true
		}
	}
	return false
}

func formatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}
