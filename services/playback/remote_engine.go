package playback

import (
	"context"
	"sync"
	"time"
)

// Command is one instruction queued for the rendering frontend. The frontend
// polls the queue, executes against its video element and reports state back.
type Command struct {
	Type       string `json:"type"` // load | play | pause | seek | audioTrack | subtitleTrack | subtitlesOff | subtitleText | stop
	URL        string `json:"url,omitempty"`
	PositionMs int64  `json:"positionMs,omitempty"`
	Track      int    `json:"track,omitempty"`
	Text       string `json:"text,omitempty"`
}

// RemoteEngine implements Engine for a frontend that does the actual
// rendering. Commands are buffered until drained; transport state is whatever
// the frontend last reported, advanced by wall clock while playing.
type RemoteEngine struct {
	mu         sync.Mutex
	cmds       []Command
	loaded     bool
	paused     bool
	positionMs int64
	durationMs int64
	reportedAt time.Time
}

func NewRemoteEngine() *RemoteEngine {
	return &RemoteEngine{}
}

func (e *RemoteEngine) push(cmd Command) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cmds = append(e.cmds, cmd)
}

// DrainCommands hands the queued commands to the frontend.
func (e *RemoteEngine) DrainCommands() []Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	cmds := e.cmds
	e.cmds = nil
	return cmds
}

// UpdateState ingests the frontend's transport report.
func (e *RemoteEngine) UpdateState(positionMs, durationMs int64, paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positionMs = positionMs
	if durationMs > 0 {
		e.durationMs = durationMs
	}
	e.paused = paused
	e.reportedAt = time.Now()
}

func (e *RemoteEngine) Load(ctx context.Context, url string, startMs int64) error {
	e.mu.Lock()
	e.loaded = true
	e.paused = false
	e.positionMs = startMs
	e.durationMs = 0
	e.reportedAt = time.Now()
	e.cmds = append(e.cmds, Command{Type: "load", URL: url, PositionMs: startMs})
	e.mu.Unlock()
	return nil
}

func (e *RemoteEngine) Play() error {
	e.mu.Lock()
	e.paused = false
	e.cmds = append(e.cmds, Command{Type: "play"})
	e.mu.Unlock()
	return nil
}

func (e *RemoteEngine) Pause() error {
	e.mu.Lock()
	e.positionMs = e.positionLocked()
	e.reportedAt = time.Now()
	e.paused = true
	e.cmds = append(e.cmds, Command{Type: "pause"})
	e.mu.Unlock()
	return nil
}

func (e *RemoteEngine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *RemoteEngine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded && !e.paused
}

func (e *RemoteEngine) SeekTo(ctx context.Context, positionMs int64) error {
	e.mu.Lock()
	e.positionMs = positionMs
	e.reportedAt = time.Now()
	e.cmds = append(e.cmds, Command{Type: "seek", PositionMs: positionMs})
	e.mu.Unlock()
	return nil
}

func (e *RemoteEngine) positionLocked() int64 {
	if e.loaded && !e.paused && !e.reportedAt.IsZero() {
		return e.positionMs + time.Since(e.reportedAt).Milliseconds()
	}
	return e.positionMs
}

func (e *RemoteEngine) PositionMs() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

func (e *RemoteEngine) DurationMs() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.durationMs
}

func (e *RemoteEngine) SetAudioTrack(ordinal int) error {
	e.push(Command{Type: "audioTrack", Track: ordinal})
	return nil
}

func (e *RemoteEngine) SetSubtitleTrack(ordinal int) error {
	e.push(Command{Type: "subtitleTrack", Track: ordinal})
	return nil
}

func (e *RemoteEngine) DisableSubtitles() error {
	e.push(Command{Type: "subtitlesOff"})
	return nil
}

func (e *RemoteEngine) ShowSubtitleText(text string) error {
	e.push(Command{Type: "subtitleText", Text: text})
	return nil
}

func (e *RemoteEngine) Stop() error {
	e.mu.Lock()
	e.loaded = false
	e.cmds = append(e.cmds, Command{Type: "stop"})
	e.mu.Unlock()
	return nil
}
