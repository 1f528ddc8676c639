package progress

import (
	"context"
	"log"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"

	"couchplay/models"
	"couchplay/services/server"
)

// PlayedThreshold is the watched fraction past which the item is marked
// played instead of receiving position updates.
const PlayedThreshold = 0.95

// reportingClient is the slice of the media-server client the reporter needs.
type reportingClient interface {
	ReportPlaying(ctx context.Context, r server.PlaybackReport) error
	ReportProgress(ctx context.Context, r server.PlaybackReport) error
	ReportStopped(ctx context.Context, r server.PlaybackReport) error
	MarkPlayed(ctx context.Context, itemID string) error
}

// State is a snapshot of the live session used to gate a tick.
type State struct {
	PositionMs int64
	Paused     bool
	Playing    bool
	Seeking    bool
}

// Reporter pushes play-state to the server for one session. All reports are
// fire and forget: failures are retried briefly, then logged and dropped so a
// flaky network never disturbs playback.
type Reporter struct {
	client        reportingClient
	itemID        string
	sourceID      string
	playSessionID string
	method        models.PlayMethod
	durationMs    int64

	mu       sync.Mutex
	finished bool
}

func NewReporter(client reportingClient, itemID, sourceID, playSessionID string, method models.PlayMethod, durationMs int64) *Reporter {
	return &Reporter{
		client:        client,
		itemID:        itemID,
		sourceID:      sourceID,
		playSessionID: playSessionID,
		method:        method,
		durationMs:    durationMs,
	}
}

func (r *Reporter) report(positionMs int64, paused bool) server.PlaybackReport {
	return server.PlaybackReport{
		ItemID:        r.itemID,
		SourceID:      r.sourceID,
		PlaySessionID: r.playSessionID,
		PositionMs:    positionMs,
		IsPaused:      paused,
		Method:        r.method,
	}
}

func (r *Reporter) send(ctx context.Context, what string, fn func(context.Context) error) {
	err := retry.Do(
		func() error { return fn(ctx) },
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		log.Printf("[progress] %s report failed for %s: %v", what, r.itemID, err)
	}
}

// ReportStart announces the session.
func (r *Reporter) ReportStart(ctx context.Context, positionMs int64) {
	r.send(ctx, "start", func(ctx context.Context) error {
		return r.client.ReportPlaying(ctx, r.report(positionMs, false))
	})
}

// Tick is the recurring report. It is suppressed while paused, seeking or
// after the item finished. Past the played threshold it marks the item
// watched exactly once instead of updating the position.
func (r *Reporter) Tick(ctx context.Context, st State) {
	if !st.Playing || st.Seeking {
		return
	}

	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	crossed := r.pastThreshold(st.PositionMs)
	if crossed {
		r.finished = true
	}
	r.mu.Unlock()

	if crossed {
		r.send(ctx, "mark played", func(ctx context.Context) error {
			return r.client.MarkPlayed(ctx, r.itemID)
		})
		return
	}

	r.send(ctx, "progress", func(ctx context.Context) error {
		return r.client.ReportProgress(ctx, r.report(st.PositionMs, st.Paused))
	})
}

// ReportPauseChange is a forced report that bypasses the playing gate so the
// server sees pause state immediately.
func (r *Reporter) ReportPauseChange(ctx context.Context, positionMs int64, paused bool) {
	r.send(ctx, "pause", func(ctx context.Context) error {
		return r.client.ReportProgress(ctx, r.report(positionMs, paused))
	})
}

// MarkFinished marks the item played once, used when the engine reports
// natural completion.
func (r *Reporter) MarkFinished(ctx context.Context) {
	r.mu.Lock()
	already := r.finished
	r.finished = true
	r.mu.Unlock()
	if already {
		return
	}
	r.send(ctx, "mark played", func(ctx context.Context) error {
		return r.client.MarkPlayed(ctx, r.itemID)
	})
}

// ReportStop closes the server-side session with the final position.
func (r *Reporter) ReportStop(ctx context.Context, positionMs int64) {
	r.mu.Lock()
	crossed := !r.finished && r.pastThreshold(positionMs)
	if crossed {
		r.finished = true
	}
	r.mu.Unlock()

	if crossed {
		r.send(ctx, "mark played", func(ctx context.Context) error {
			return r.client.MarkPlayed(ctx, r.itemID)
		})
	}
	r.send(ctx, "stop", func(ctx context.Context) error {
		return r.client.ReportStopped(ctx, r.report(positionMs, false))
	})
}

// Finished reports whether the played threshold was crossed.
func (r *Reporter) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

func (r *Reporter) pastThreshold(positionMs int64) bool {
	if r.durationMs <= 0 {
		return false
	}
	return float64(positionMs) >= float64(r.durationMs)*PlayedThreshold
}

// Run drives Tick on a fixed interval until ctx is cancelled. state is read
// each tick so the gate always sees the live session.
func (r *Reporter) Run(ctx context.Context, interval time.Duration, state func() State) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx, state())
		}
	}
}
