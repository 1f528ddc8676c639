package subtitles

import (
	"context"
	"testing"

	"github.com/spf13/afero"
)

type fakeDownloader struct {
	payload []byte
	err     error
	calls   int
}

func (f *fakeDownloader) SubtitleText(ctx context.Context, itemID, sourceID string, index int) ([]byte, error) {
	f.calls++
	return f.payload, f.err
}

const sampleSRT = "1\n00:00:01,000 --> 00:00:02,000\nCached line\n"

func TestLoaderDownloadsAndCaches(t *testing.T) {
	fs := afero.NewMemMapFs()
	dl := &fakeDownloader{payload: []byte(sampleSRT)}
	l := NewLoader(fs, "subs", dl)

	cues, err := l.Load(context.Background(), "item1", "src1", 3)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cues) != 1 || cues[0].Text != "Cached line" {
		t.Fatalf("unexpected cues: %+v", cues)
	}

	// second load must come from the cache
	if _, err := l.Load(context.Background(), "item1", "src1", 3); err != nil {
		t.Fatalf("cached Load returned error: %v", err)
	}
	if dl.calls != 1 {
		t.Errorf("downloader called %d times, want 1", dl.calls)
	}
}

func TestLoaderRejectsHTMLPayload(t *testing.T) {
	fs := afero.NewMemMapFs()
	dl := &fakeDownloader{payload: []byte("<!DOCTYPE html><html><body>502 Bad Gateway</body></html>")}
	l := NewLoader(fs, "subs", dl)

	if _, err := l.Load(context.Background(), "item1", "src1", 3); err == nil {
		t.Fatal("expected error for HTML payload")
	}

	// nothing should be cached for a rejected payload
	if ok, _ := afero.Exists(fs, "subs/item1-src1-3.srt"); ok {
		t.Error("rejected payload was cached")
	}
}

func TestLoaderDistinctKeysPerStream(t *testing.T) {
	fs := afero.NewMemMapFs()
	dl := &fakeDownloader{payload: []byte(sampleSRT)}
	l := NewLoader(fs, "subs", dl)

	if _, err := l.Load(context.Background(), "item1", "src1", 3); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if _, err := l.Load(context.Background(), "item1", "src1", 4); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if dl.calls != 2 {
		t.Errorf("downloader called %d times, want 2", dl.calls)
	}
}
