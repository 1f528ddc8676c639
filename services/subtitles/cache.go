package subtitles

import (
	"context"
	"fmt"
	"log"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"couchplay/models"
)

// downloader fetches one subtitle stream as SRT text.
type downloader interface {
	SubtitleText(ctx context.Context, itemID, sourceID string, index int) ([]byte, error)
}

// Loader downloads subtitle streams, caches the raw SRT on a filesystem and
// parses into cues. Cache entries are keyed by item, source and stream index.
type Loader struct {
	fs     afero.Fs
	dir    string
	client downloader
}

func NewLoader(fs afero.Fs, dir string, client downloader) *Loader {
	return &Loader{fs: fs, dir: dir, client: client}
}

// Load returns the parsed cues for one subtitle stream, downloading on a
// cache miss. A proxy error page served instead of subtitles is rejected
// before it reaches the parser.
func (l *Loader) Load(ctx context.Context, itemID, sourceID string, index int) ([]models.SubtitleCue, error) {
	key := fmt.Sprintf("%s/%s-%s-%d.srt", l.dir, itemID, sourceID, index)

	if data, err := afero.ReadFile(l.fs, key); err == nil && len(data) > 0 {
		return ParseSRT(string(data))
	}

	data, err := l.client.SubtitleText(ctx, itemID, sourceID, index)
	if err != nil {
		return nil, fmt.Errorf("download subtitle %s stream %d: %w", itemID, index, err)
	}

	mtype := mimetype.Detect(data)
	if mtype.Is("text/html") || mtype.Is("application/json") {
		return nil, fmt.Errorf("subtitle %s stream %d: unexpected payload type %s", itemID, index, mtype.String())
	}

	cues, err := ParseSRT(string(data))
	if err != nil {
		return nil, err
	}

	// cache write is best effort
	if err := l.fs.MkdirAll(l.dir, 0o755); err == nil {
		if err := afero.WriteFile(l.fs, key, data, 0o644); err != nil {
			log.Printf("[subtitles] cache write failed for %s: %v", key, err)
		}
	}

	return cues, nil
}
