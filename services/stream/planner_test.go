package stream

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"couchplay/models"
	"couchplay/services/server"
)

type fakeInfoClient struct {
	info       *server.PlaybackInfo
	infoErr    error
	lastReq    server.PlaybackInfoRequest
	anamorphic bool
	hintErr    error
}

func (f *fakeInfoClient) PlaybackInfo(ctx context.Context, itemID string, req server.PlaybackInfoRequest) (*server.PlaybackInfo, error) {
	f.lastReq = req
	return f.info, f.infoErr
}

func (f *fakeInfoClient) AnamorphicHint(ctx context.Context, itemID string) (bool, error) {
	return f.anamorphic, f.hintErr
}

func (f *fakeInfoClient) BaseURL() string  { return "http://server:8096" }
func (f *fakeInfoClient) Token() string    { return "tok" }
func (f *fakeInfoClient) DeviceID() string { return "dev1" }

func testProfile() Profile {
	return Profile{
		NativeVideoCodecs:    []string{"h264", "hevc"},
		TranscodeAudioCodecs: "aac,mp3,ac3",
		MaxAudioChannels:     6,
		MaxStreamingBitrate:  120000000,
	}
}

func sourceWith(direct, transcode bool) models.MediaSource {
	return models.MediaSource{
		ID:                  "src1",
		SupportsDirectPlay:  direct,
		SupportsTranscoding: transcode,
		Streams: []models.MediaStream{
			{Index: 0, Type: models.StreamTypeVideo, Codec: "h264", Width: 1920, Height: 1080},
			{Index: 1, Type: models.StreamTypeAudio, Codec: "aac", Language: "eng"},
			{Index: 2, Type: models.StreamTypeSubtitle, Codec: "subrip", Language: "eng"},
			{Index: 3, Type: models.StreamTypeSubtitle, Codec: "subrip", Language: "swe", IsExternal: true},
		},
	}
}

func infoFor(sources ...models.MediaSource) *server.PlaybackInfo {
	return &server.PlaybackInfo{PlaySessionID: "ps1", Sources: sources}
}

func queryOf(t *testing.T, rawURL string) url.Values {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("plan URL does not parse: %v", err)
	}
	return u.Query()
}

func TestBuildDirectPlay(t *testing.T) {
	client := &fakeInfoClient{info: infoFor(sourceWith(true, true))}
	p := NewPlanner(client, testProfile())

	plan, err := p.Build(context.Background(), models.MediaItem{ID: "item1"}, Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if plan.Method != models.PlayMethodDirectPlay {
		t.Errorf("method = %s, want DirectPlay", plan.Method)
	}
	if !strings.Contains(plan.URL, "/Videos/item1/stream") {
		t.Errorf("unexpected direct URL: %s", plan.URL)
	}
	q := queryOf(t, plan.URL)
	if q.Get("Static") != "true" || q.Get("PlaySessionId") != "ps1" {
		t.Errorf("direct URL missing params: %s", plan.URL)
	}
}

func TestBuildAudioOverrideForcesTranscode(t *testing.T) {
	client := &fakeInfoClient{info: infoFor(sourceWith(true, true))}
	p := NewPlanner(client, testProfile())

	audio := 1
	plan, err := p.Build(context.Background(), models.MediaItem{ID: "item1"}, Options{AudioIndex: &audio})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if plan.Method != models.PlayMethodTranscode {
		t.Errorf("method = %s, want Transcode", plan.Method)
	}
	if got := queryOf(t, plan.URL).Get("AudioStreamIndex"); got != "1" {
		t.Errorf("AudioStreamIndex = %q, want 1", got)
	}
}

func TestBuildBurnInWithExplicitIndex(t *testing.T) {
	client := &fakeInfoClient{info: infoFor(sourceWith(true, true))}
	p := NewPlanner(client, testProfile())

	sub := 2
	plan, err := p.Build(context.Background(), models.MediaItem{ID: "item1"},
		Options{BurnInSubtitle: true, SubtitleIndex: &sub})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if !client.lastReq.ForceTranscode {
		t.Error("explicit burn-in index should force transcode in the request")
	}
	if plan.Method != models.PlayMethodTranscode {
		t.Errorf("method = %s, want Transcode", plan.Method)
	}
	q := queryOf(t, plan.URL)
	if q.Get("SubtitleStreamIndex") != "2" || q.Get("SubtitleMethod") != "Encode" {
		t.Errorf("burn-in params missing: %s", plan.URL)
	}
	if q.Get("SegmentContainer") != "ts" {
		t.Errorf("SegmentContainer = %q, want ts for burn-in", q.Get("SegmentContainer"))
	}
	if plan.Subtitle == nil || !plan.Subtitle.BurnedIn {
		t.Error("plan should carry a burned-in subtitle selection")
	}
}

func TestBuildBurnInWithoutIndexStaysDirect(t *testing.T) {
	client := &fakeInfoClient{info: infoFor(sourceWith(true, true))}
	p := NewPlanner(client, testProfile())

	plan, err := p.Build(context.Background(), models.MediaItem{ID: "item1"}, Options{BurnInSubtitle: true})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if client.lastReq.ForceTranscode {
		t.Error("burn-in without an explicit index must not force transcode")
	}
	if client.lastReq.SubtitleStreamIndex == nil || *client.lastReq.SubtitleStreamIndex != -1 {
		t.Errorf("requested subtitle index = %v, want -1", client.lastReq.SubtitleStreamIndex)
	}
	if plan.Method != models.PlayMethodDirectPlay {
		t.Errorf("method = %s, want DirectPlay", plan.Method)
	}
}

func TestBuildNoPlayableSource(t *testing.T) {
	client := &fakeInfoClient{info: infoFor(sourceWith(false, false))}
	p := NewPlanner(client, testProfile())

	if _, err := p.Build(context.Background(), models.MediaItem{ID: "item1"}, Options{}); !errors.Is(err, ErrNoPlayableSource) {
		t.Errorf("error = %v, want ErrNoPlayableSource", err)
	}
}

func TestBuildPlaybackInfoUnavailable(t *testing.T) {
	client := &fakeInfoClient{infoErr: errors.New("boom")}
	p := NewPlanner(client, testProfile())

	if _, err := p.Build(context.Background(), models.MediaItem{ID: "item1"}, Options{}); !errors.Is(err, ErrPlaybackInfoUnavailable) {
		t.Errorf("error = %v, want ErrPlaybackInfoUnavailable", err)
	}
}

func TestBuildReusesTranscodingURLWithoutDuplicates(t *testing.T) {
	src := sourceWith(false, true)
	src.TranscodingURL = "/Videos/item1/master.m3u8?api_key=already&DeviceId=dev1"
	client := &fakeInfoClient{info: infoFor(src)}
	p := NewPlanner(client, testProfile())

	plan, err := p.Build(context.Background(), models.MediaItem{ID: "item1"}, Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	q := queryOf(t, plan.URL)
	if got := q["api_key"]; len(got) != 1 || got[0] != "already" {
		t.Errorf("api_key = %v, want the server's value exactly once", got)
	}
	if q.Get("PlaySessionId") != "ps1" {
		t.Errorf("PlaySessionId missing from reused URL: %s", plan.URL)
	}
}

func TestBuildSynthesizedTranscodeURL(t *testing.T) {
	client := &fakeInfoClient{info: infoFor(sourceWith(false, true))}
	p := NewPlanner(client, testProfile())

	plan, err := p.Build(context.Background(), models.MediaItem{ID: "item1"}, Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	q := queryOf(t, plan.URL)
	if q.Get("VideoCodec") != "h264,hevc" {
		t.Errorf("VideoCodec = %q", q.Get("VideoCodec"))
	}
	if q.Get("MaxAudioChannels") != "6" {
		t.Errorf("MaxAudioChannels = %q", q.Get("MaxAudioChannels"))
	}
	if q.Get("SegmentContainer") != "mp4" {
		t.Errorf("SegmentContainer = %q, want mp4 for a native video codec", q.Get("SegmentContainer"))
	}
	if q.Get("MinSegments") != "1" || q.Get("BreakOnNonKeyFrames") != "true" {
		t.Errorf("segment hints missing: %s", plan.URL)
	}
}

func TestSubtitleCandidateSelection(t *testing.T) {
	client := &fakeInfoClient{info: infoFor(sourceWith(true, true))}
	p := NewPlanner(client, testProfile())

	// no explicit choice: external wins over embedded
	plan, err := p.Build(context.Background(), models.MediaItem{ID: "item1"}, Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if plan.Subtitle == nil || plan.Subtitle.Stream.Index != 3 {
		t.Errorf("candidate = %+v, want external stream 3", plan.Subtitle)
	}

	// explicit choice wins over the external preference
	sub := 2
	plan, err = p.Build(context.Background(), models.MediaItem{ID: "item1"}, Options{SubtitleIndex: &sub})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if plan.Subtitle == nil || plan.Subtitle.Stream.Index != 2 || plan.Subtitle.BurnedIn {
		t.Errorf("candidate = %+v, want embedded stream 2", plan.Subtitle)
	}
}

func TestSubtitleCandidateFallsBackToEmbeddedNonDefault(t *testing.T) {
	src := sourceWith(true, true)
	// only text subtitle is an embedded, non-default track
	src.Streams = []models.MediaStream{
		{Index: 0, Type: models.StreamTypeVideo, Codec: "h264"},
		{Index: 1, Type: models.StreamTypeAudio, Codec: "aac"},
		{Index: 2, Type: models.StreamTypeSubtitle, Codec: "pgssub"},
		{Index: 3, Type: models.StreamTypeSubtitle, Codec: "subrip", Language: "eng"},
	}
	client := &fakeInfoClient{info: infoFor(src)}
	p := NewPlanner(client, testProfile())

	plan, err := p.Build(context.Background(), models.MediaItem{ID: "item1"}, Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if plan.Subtitle == nil || plan.Subtitle.Stream.Index != 3 {
		t.Errorf("candidate = %+v, want embedded text stream 3", plan.Subtitle)
	}
}

func TestSubtitleCandidatePrefersConfiguredLanguage(t *testing.T) {
	src := sourceWith(true, true)
	src.Streams = append(src.Streams,
		models.MediaStream{Index: 4, Type: models.StreamTypeSubtitle, Codec: "subrip", Language: "eng", IsExternal: true})
	client := &fakeInfoClient{info: infoFor(src)}

	profile := testProfile()
	profile.SubtitleLanguage = "en"
	p := NewPlanner(client, profile)

	plan, err := p.Build(context.Background(), models.MediaItem{ID: "item1"}, Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	// stream 3 (swe) comes first but the configured language wins
	if plan.Subtitle == nil || plan.Subtitle.Stream.Index != 4 {
		t.Errorf("candidate = %+v, want english stream 4", plan.Subtitle)
	}
}

func TestAnamorphicHintBestEffort(t *testing.T) {
	client := &fakeInfoClient{info: infoFor(sourceWith(true, true)), hintErr: errors.New("offline")}
	p := NewPlanner(client, testProfile())

	plan, err := p.Build(context.Background(), models.MediaItem{ID: "item1"}, Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if plan.Anamorphic {
		t.Error("hint failure must degrade to not anamorphic")
	}

	client.hintErr = nil
	client.anamorphic = true
	plan, _ = p.Build(context.Background(), models.MediaItem{ID: "item1"}, Options{})
	if !plan.Anamorphic {
		t.Error("hint should flow through to the plan")
	}
}

func TestPreferredSourceOverride(t *testing.T) {
	second := sourceWith(true, true)
	second.ID = "src2"
	client := &fakeInfoClient{info: infoFor(sourceWith(true, true), second)}
	p := NewPlanner(client, testProfile())

	plan, err := p.Build(context.Background(), models.MediaItem{ID: "item1"}, Options{PreferredSourceID: "src2"})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if plan.Source.ID != "src2" {
		t.Errorf("source = %s, want src2", plan.Source.ID)
	}
}
