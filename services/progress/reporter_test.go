package progress

import (
	"context"
	"errors"
	"sync"
	"testing"

	"couchplay/models"
	"couchplay/services/server"
)

type fakeReportClient struct {
	mu         sync.Mutex
	playing    int
	progress   int
	stopped    int
	played     int
	lastReport server.PlaybackReport
	fail       bool
}

func (f *fakeReportClient) ReportPlaying(ctx context.Context, r server.PlaybackReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing++
	f.lastReport = r
	if f.fail {
		return errors.New("down")
	}
	return nil
}

func (f *fakeReportClient) ReportProgress(ctx context.Context, r server.PlaybackReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress++
	f.lastReport = r
	if f.fail {
		return errors.New("down")
	}
	return nil
}

func (f *fakeReportClient) ReportStopped(ctx context.Context, r server.PlaybackReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	f.lastReport = r
	return nil
}

func (f *fakeReportClient) MarkPlayed(ctx context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played++
	return nil
}

func newTestReporter(client *fakeReportClient) *Reporter {
	return NewReporter(client, "item1", "src1", "ps1", models.PlayMethodDirectPlay, 100_000)
}

func TestTickReportsProgress(t *testing.T) {
	client := &fakeReportClient{}
	r := newTestReporter(client)

	r.Tick(context.Background(), State{PositionMs: 10_000, Playing: true})
	if client.progress != 1 {
		t.Fatalf("progress reports = %d, want 1", client.progress)
	}
	if client.lastReport.PositionMs != 10_000 {
		t.Errorf("reported position = %d", client.lastReport.PositionMs)
	}
}

func TestTickSuppressedWhileNotPlayingOrSeeking(t *testing.T) {
	client := &fakeReportClient{}
	r := newTestReporter(client)

	r.Tick(context.Background(), State{PositionMs: 10_000, Playing: false})
	r.Tick(context.Background(), State{PositionMs: 10_000, Playing: true, Seeking: true})
	if client.progress != 0 {
		t.Errorf("progress reports = %d, want 0", client.progress)
	}
}

func TestTickMarksPlayedOnceAtThreshold(t *testing.T) {
	client := &fakeReportClient{}
	r := newTestReporter(client)

	// 95% of 100s
	r.Tick(context.Background(), State{PositionMs: 95_000, Playing: true})
	r.Tick(context.Background(), State{PositionMs: 96_000, Playing: true})
	r.Tick(context.Background(), State{PositionMs: 97_000, Playing: true})

	if client.played != 1 {
		t.Errorf("mark played calls = %d, want 1", client.played)
	}
	if client.progress != 0 {
		t.Errorf("progress reports after threshold = %d, want 0", client.progress)
	}
	if !r.Finished() {
		t.Error("reporter should be finished")
	}
}

func TestPauseChangeBypassesPlayingGate(t *testing.T) {
	client := &fakeReportClient{}
	r := newTestReporter(client)

	r.ReportPauseChange(context.Background(), 10_000, true)
	if client.progress != 1 {
		t.Fatalf("forced pause report missing")
	}
	if !client.lastReport.IsPaused {
		t.Error("report should carry paused state")
	}
}

func TestReportStopMarksPlayedPastThreshold(t *testing.T) {
	client := &fakeReportClient{}
	r := newTestReporter(client)

	r.ReportStop(context.Background(), 99_000)
	if client.played != 1 {
		t.Errorf("mark played calls = %d, want 1", client.played)
	}
	if client.stopped != 1 {
		t.Errorf("stop reports = %d, want 1", client.stopped)
	}
}

func TestMarkFinishedIdempotent(t *testing.T) {
	client := &fakeReportClient{}
	r := newTestReporter(client)

	r.MarkFinished(context.Background())
	r.MarkFinished(context.Background())
	if client.played != 1 {
		t.Errorf("mark played calls = %d, want 1", client.played)
	}
}

func TestUnknownDurationNeverMarksPlayed(t *testing.T) {
	client := &fakeReportClient{}
	r := NewReporter(client, "item1", "src1", "ps1", models.PlayMethodDirectPlay, 0)

	r.Tick(context.Background(), State{PositionMs: 1 << 40, Playing: true})
	if client.played != 0 {
		t.Errorf("mark played calls = %d, want 0", client.played)
	}
	if client.progress != 1 {
		t.Errorf("progress reports = %d, want 1", client.progress)
	}
}
