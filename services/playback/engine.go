package playback

import (
	"context"
	"errors"
)

// ErrEngineFailure wraps fatal errors from the playback engine.
var ErrEngineFailure = errors.New("playback engine failure")

// Engine is the rendering side of a session: a black box that plays a stream
// URL and exposes transport state. Stream indices never reach the engine;
// tracks are addressed by their ordinal within the source's track list.
type Engine interface {
	Load(ctx context.Context, url string, startMs int64) error
	Play() error
	Pause() error
	Paused() bool
	Playing() bool
	SeekTo(ctx context.Context, positionMs int64) error
	PositionMs() int64
	DurationMs() int64
	SetAudioTrack(ordinal int) error
	SetSubtitleTrack(ordinal int) error
	DisableSubtitles() error
	ShowSubtitleText(text string) error
	Stop() error
}

// EventKind classifies engine events.
type EventKind int

const (
	EventCompleted EventKind = iota
	EventFailed
)

// Event is an asynchronous notification from the engine.
type Event struct {
	Kind EventKind
	Err  error
}
