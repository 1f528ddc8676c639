package osd

// The on-screen display is modeled as a pure state machine: the controller
// feeds remote events in, applies the returned effects and renders the
// returned state. Nothing in here touches the engine or the clock.

// Mode is the top-level OSD state.
type Mode int

const (
	ModeHidden Mode = iota
	ModeVisible
	ModeSeeking
	ModeAudio
	ModeSubtitles
)

func (m Mode) String() string {
	switch m {
	case ModeHidden:
		return "hidden"
	case ModeVisible:
		return "visible"
	case ModeSeeking:
		return "seeking"
	case ModeAudio:
		return "audio"
	case ModeSubtitles:
		return "subtitles"
	}
	return "unknown"
}

// FocusRow is the focused row while the transport bar is visible.
type FocusRow int

const (
	RowSeekbar FocusRow = iota
	RowButtons
)

// Event is one remote-control input.
type Event int

const (
	EventUp Event = iota
	EventDown
	EventLeft
	EventRight
	EventEnter
	EventBack
	EventTimeout // inactivity timer, fed by the controller
	EventPlayPauseKey
	EventNextKey
	EventPreviousKey
	EventAudioKey
	EventSubtitlesKey
)

// Subtitle overlay rows: the offset control and the off switch come before
// the selectable tracks.
const (
	subtitleRowOffset = 0
	subtitleRowOff    = 1
	subtitleRowTracks = 2
)

// State is the complete OSD state. It is a value; transitions return a new one.
type State struct {
	Mode          Mode
	Focus         FocusRow
	ButtonIndex   int
	SeekPreviewMs int64
	ListIndex     int
	OffsetAdjust  bool
}

// Hidden is the initial state.
func Hidden() State {
	return State{Mode: ModeHidden}
}

// Env carries the session facts a transition may need.
type Env struct {
	PositionMs         int64
	DurationMs         int64
	SeekStepMs         int64
	ButtonCount        int // episode navigation buttons, 0 for movies
	AudioTrackCount    int
	SubtitleTrackCount int // selectable tracks, excluding offset and off rows
}

// EffectKind identifies a side effect requested by a transition.
type EffectKind int

const (
	EffectTogglePause EffectKind = iota
	EffectCommitSeek
	EffectSwitchAudio
	EffectSwitchSubtitle
	EffectSubtitleOff
	EffectAdjustOffset
	EffectNavigateNext
	EffectNavigatePrevious
	EffectDelegateBack // input not consumed; the hosting screen handles Back
)

// Effect is a requested side effect. Which fields are meaningful depends on Kind.
type Effect struct {
	Kind         EffectKind
	SeekToMs     int64
	TrackOrdinal int // position within the audio or subtitle track list
	OffsetSteps  int
}

// Transition computes the next state and effects for one event. It is total:
// every event in every state resolves, possibly to a no-op.
func Transition(s State, ev Event, env Env) (State, []Effect) {
	// dedicated media keys act the same everywhere
	switch ev {
	case EventPlayPauseKey:
		return s, []Effect{{Kind: EffectTogglePause}}
	case EventNextKey:
		return s, []Effect{{Kind: EffectNavigateNext}}
	case EventPreviousKey:
		return s, []Effect{{Kind: EffectNavigatePrevious}}
	case EventAudioKey:
		if env.AudioTrackCount > 0 {
			return State{Mode: ModeAudio}, nil
		}
		return s, nil
	case EventSubtitlesKey:
		return State{Mode: ModeSubtitles}, nil
	}

	switch s.Mode {
	case ModeHidden:
		return transitionHidden(s, ev, env)
	case ModeVisible:
		return transitionVisible(s, ev, env)
	case ModeSeeking:
		return transitionSeeking(s, ev, env)
	case ModeAudio:
		return transitionAudio(s, ev, env)
	case ModeSubtitles:
		return transitionSubtitles(s, ev, env)
	}
	return s, nil
}

func transitionHidden(s State, ev Event, env Env) (State, []Effect) {
	switch ev {
	case EventBack:
		return s, []Effect{{Kind: EffectDelegateBack}}
	case EventUp, EventDown, EventLeft, EventRight, EventEnter:
		// first press only reveals the bar
		return State{Mode: ModeVisible, Focus: RowSeekbar, SeekPreviewMs: env.PositionMs}, nil
	}
	return s, nil
}

func transitionVisible(s State, ev Event, env Env) (State, []Effect) {
	if ev == EventTimeout || ev == EventBack {
		return Hidden(), nil
	}

	if s.Focus == RowButtons {
		switch ev {
		case EventLeft:
			if s.ButtonIndex > 0 {
				s.ButtonIndex--
			}
		case EventRight:
			if s.ButtonIndex < env.ButtonCount-1 {
				s.ButtonIndex++
			}
		case EventUp:
			s.Focus = RowSeekbar
		case EventEnter:
			if s.ButtonIndex == 0 {
				return Hidden(), []Effect{{Kind: EffectNavigatePrevious}}
			}
			return Hidden(), []Effect{{Kind: EffectNavigateNext}}
		}
		return s, nil
	}

	switch ev {
	case EventLeft:
		preview := clampSeek(env.PositionMs-env.SeekStepMs, env.DurationMs)
		return State{Mode: ModeSeeking, SeekPreviewMs: preview}, nil
	case EventRight:
		preview := clampSeek(env.PositionMs+env.SeekStepMs, env.DurationMs)
		return State{Mode: ModeSeeking, SeekPreviewMs: preview}, nil
	case EventUp:
		if env.AudioTrackCount > 0 {
			return State{Mode: ModeAudio}, nil
		}
	case EventDown:
		if env.ButtonCount > 0 {
			s.Focus = RowButtons
			s.ButtonIndex = 0
		}
	case EventEnter:
		return s, []Effect{{Kind: EffectTogglePause}}
	}
	return s, nil
}

func transitionSeeking(s State, ev Event, env Env) (State, []Effect) {
	switch ev {
	case EventLeft:
		s.SeekPreviewMs = clampSeek(s.SeekPreviewMs-env.SeekStepMs, env.DurationMs)
	case EventRight:
		s.SeekPreviewMs = clampSeek(s.SeekPreviewMs+env.SeekStepMs, env.DurationMs)
	case EventEnter:
		next := State{Mode: ModeVisible, Focus: RowSeekbar, SeekPreviewMs: s.SeekPreviewMs}
		return next, []Effect{{Kind: EffectCommitSeek, SeekToMs: s.SeekPreviewMs}}
	case EventBack:
		// cancel the pending seek
		return State{Mode: ModeVisible, Focus: RowSeekbar, SeekPreviewMs: env.PositionMs}, nil
	case EventTimeout:
		return Hidden(), nil
	}
	return s, nil
}

func transitionAudio(s State, ev Event, env Env) (State, []Effect) {
	switch ev {
	case EventUp:
		if s.ListIndex > 0 {
			s.ListIndex--
		}
	case EventDown:
		if s.ListIndex < env.AudioTrackCount-1 {
			s.ListIndex++
		}
	case EventEnter:
		next := State{Mode: ModeVisible, Focus: RowSeekbar, SeekPreviewMs: env.PositionMs}
		return next, []Effect{{Kind: EffectSwitchAudio, TrackOrdinal: s.ListIndex}}
	case EventBack:
		return State{Mode: ModeVisible, Focus: RowSeekbar, SeekPreviewMs: env.PositionMs}, nil
	}
	// overlays are exempt from the inactivity timeout
	return s, nil
}

func transitionSubtitles(s State, ev Event, env Env) (State, []Effect) {
	if s.OffsetAdjust {
		switch ev {
		case EventLeft:
			return s, []Effect{{Kind: EffectAdjustOffset, OffsetSteps: -1}}
		case EventRight:
			return s, []Effect{{Kind: EffectAdjustOffset, OffsetSteps: 1}}
		case EventBack, EventUp, EventEnter:
			// back unwinds exactly one level, to the list
			s.OffsetAdjust = false
		case EventDown:
			s.OffsetAdjust = false
			s.ListIndex = subtitleRowOff
		}
		return s, nil
	}

	lastRow := subtitleRowOff + env.SubtitleTrackCount
	switch ev {
	case EventUp:
		if s.ListIndex == subtitleRowOffset {
			s.OffsetAdjust = true
		} else {
			s.ListIndex--
		}
	case EventDown:
		if s.ListIndex < lastRow {
			s.ListIndex++
		}
	case EventEnter:
		switch {
		case s.ListIndex == subtitleRowOffset:
			s.OffsetAdjust = true
		case s.ListIndex == subtitleRowOff:
			next := State{Mode: ModeVisible, Focus: RowSeekbar, SeekPreviewMs: env.PositionMs}
			return next, []Effect{{Kind: EffectSubtitleOff}}
		default:
			next := State{Mode: ModeVisible, Focus: RowSeekbar, SeekPreviewMs: env.PositionMs}
			return next, []Effect{{Kind: EffectSwitchSubtitle, TrackOrdinal: s.ListIndex - subtitleRowTracks}}
		}
	case EventBack:
		return State{Mode: ModeVisible, Focus: RowSeekbar, SeekPreviewMs: env.PositionMs}, nil
	}
	return s, nil
}

func clampSeek(ms, durationMs int64) int64 {
	if ms < 0 {
		return 0
	}
	if durationMs > 0 && ms > durationMs {
		return durationMs
	}
	return ms
}
