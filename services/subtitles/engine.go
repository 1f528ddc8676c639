package subtitles

import (
	"errors"

	"couchplay/models"
)

// Offset bounds and step for user adjustment, in milliseconds.
const (
	OffsetMinMs  = -5000
	OffsetMaxMs  = 5000
	OffsetStepMs = 100
)

// ErrOffsetUnsupported is returned when the active subtitle cannot be shifted
// (burned-in or natively rendered tracks).
var ErrOffsetUnsupported = errors.New("subtitle offset not supported for this track")

// Engine resolves the active cue for a play position. It caches the last
// active index so the steady-state lookup is a bounds check, and signals a
// change only when the active cue actually moves.
type Engine struct {
	cues      []models.SubtitleCue
	offsetMs  int
	activeIdx int
}

// NewEngine wraps parsed cues. Cues must already be sorted by start time.
func NewEngine(cues []models.SubtitleCue) *Engine {
	return &Engine{cues: cues, activeIdx: -1}
}

// ActiveCueAt returns the cue text for positionMs and whether the active cue
// changed since the previous call. An empty text with changed=true means the
// display should clear.
func (e *Engine) ActiveCueAt(positionMs int64) (string, bool) {
	t := positionMs - int64(e.offsetMs)

	// fast path: still inside the cached cue
	if e.activeIdx >= 0 && e.activeIdx < len(e.cues) {
		c := e.cues[e.activeIdx]
		if t >= c.StartMs && t <= c.EndMs {
			return c.Text, false
		}
	}

	idx := e.findCue(t)
	if idx == e.activeIdx {
		return "", false
	}
	e.activeIdx = idx
	if idx < 0 {
		return "", true
	}
	return e.cues[idx].Text, true
}

// findCue scans for the cue containing t. Overlapping cues resolve to the
// later start, matching how they were authored to replace each other.
func (e *Engine) findCue(t int64) int {
	found := -1
	for i, c := range e.cues {
		if c.StartMs > t {
			break
		}
		if t <= c.EndMs {
			found = i
		}
	}
	return found
}

// OffsetMs returns the current offset.
func (e *Engine) OffsetMs() int {
	return e.offsetMs
}

// AdjustOffset moves the offset by steps of OffsetStepMs, clamped to the
// supported range, and invalidates the cached cue.
func (e *Engine) AdjustOffset(steps int) int {
	return e.SetOffset(e.offsetMs + steps*OffsetStepMs)
}

// SetOffset sets an absolute offset, clamped, and returns the applied value.
func (e *Engine) SetOffset(ms int) int {
	if ms < OffsetMinMs {
		ms = OffsetMinMs
	}
	if ms > OffsetMaxMs {
		ms = OffsetMaxMs
	}
	e.offsetMs = ms
	e.activeIdx = -1
	return e.offsetMs
}

// CueCount reports how many cues are loaded.
func (e *Engine) CueCount() int {
	return len(e.cues)
}
