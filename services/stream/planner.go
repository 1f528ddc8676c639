package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"couchplay/models"
	"couchplay/services/server"
)

var (
	// ErrPlaybackInfoUnavailable means the server could not resolve sources;
	// no session is started.
	ErrPlaybackInfoUnavailable = errors.New("playback info unavailable")
	// ErrNoPlayableSource means the selected source supports neither direct
	// play nor transcoding.
	ErrNoPlayableSource = errors.New("no playable source")
)

// textSubtitleCodecs are deliverable through the SRT extraction endpoint.
// Image-based formats are not candidates for side-band rendering.
var textSubtitleCodecs = map[string]bool{
	"srt":      true,
	"subrip":   true,
	"ass":      true,
	"ssa":      true,
	"vtt":      true,
	"webvtt":   true,
	"mov_text": true,
}

// infoClient is the slice of the media-server client the planner needs.
type infoClient interface {
	PlaybackInfo(ctx context.Context, itemID string, req server.PlaybackInfoRequest) (*server.PlaybackInfo, error)
	AnamorphicHint(ctx context.Context, itemID string) (bool, error)
	BaseURL() string
	Token() string
	DeviceID() string
}

// Profile describes what the device can play without server-side help.
type Profile struct {
	NativeVideoCodecs    []string
	TranscodeAudioCodecs string
	MaxAudioChannels     int
	MaxStreamingBitrate  int
	SubtitleLanguage     string // preferred language for automatic selection
}

func (p Profile) nativeVideo(codec string) bool {
	for _, c := range p.NativeVideoCodecs {
		if strings.EqualFold(c, codec) {
			return true
		}
	}
	return false
}

// Options are the per-session overrides supplied by the caller.
type Options struct {
	AudioIndex        *int
	SubtitleIndex     *int
	BurnInSubtitle    bool
	PreferredSourceID string
	StartPositionMs   int64
}

// Planner turns an item plus overrides into a ready-to-play StreamPlan.
type Planner struct {
	client  infoClient
	profile Profile
}

func NewPlanner(client infoClient, profile Profile) *Planner {
	return &Planner{client: client, profile: profile}
}

// Build resolves sources, picks the play method and constructs the stream
// URL. Subtitle burn-in forces a transcode only when an explicit subtitle
// index accompanies it; burn-in alone sends index -1 and lets the server pick.
func (p *Planner) Build(ctx context.Context, item models.MediaItem, opts Options) (*models.StreamPlan, error) {
	forceTranscode := opts.BurnInSubtitle && opts.SubtitleIndex != nil

	req := server.PlaybackInfoRequest{
		StartPositionTicks:  opts.StartPositionMs * models.TicksPerMillisecond,
		AudioStreamIndex:    opts.AudioIndex,
		MaxStreamingBitrate: p.profile.MaxStreamingBitrate,
		ForceTranscode:      forceTranscode,
	}
	switch {
	case opts.SubtitleIndex != nil:
		req.SubtitleStreamIndex = opts.SubtitleIndex
	case opts.BurnInSubtitle:
		noChoice := -1
		req.SubtitleStreamIndex = &noChoice
	}

	info, err := p.client.PlaybackInfo(ctx, item.ID, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaybackInfoUnavailable, err)
	}
	if len(info.Sources) == 0 {
		return nil, ErrNoPlayableSource
	}

	source := info.Sources[0]
	if opts.PreferredSourceID != "" {
		for _, s := range info.Sources {
			if s.ID == opts.PreferredSourceID {
				source = s
				break
			}
		}
	}

	anamorphic := false
	if hint, err := p.client.AnamorphicHint(ctx, item.ID); err != nil {
		log.Printf("[stream] anamorphic hint failed for %s: %v", item.ID, err)
	} else {
		anamorphic = hint
	}

	plan := &models.StreamPlan{
		Source:        source,
		PlaySessionID: info.PlaySessionID,
		Anamorphic:    anamorphic,
	}

	needsOverride := opts.AudioIndex != nil || forceTranscode
	switch {
	case source.SupportsDirectPlay && !needsOverride:
		plan.Method = models.PlayMethodDirectPlay
		plan.URL = p.directStreamURL(item.ID, source, info.PlaySessionID)
	case source.SupportsTranscoding || needsOverride:
		plan.Method = models.PlayMethodTranscode
		plan.URL = p.transcodeURL(item.ID, source, info.PlaySessionID, opts)
	default:
		return nil, ErrNoPlayableSource
	}

	plan.Subtitle = p.selectSubtitle(source, opts)
	return plan, nil
}

func (p *Planner) directStreamURL(itemID string, source models.MediaSource, playSessionID string) string {
	u := joinURL(p.client.BaseURL(), "/Videos/"+itemID+"/stream")
	u = appendQuery(u, "Static", "true")
	u = appendQuery(u, "MediaSourceId", source.ID)
	u = appendQuery(u, "DeviceId", p.client.DeviceID())
	u = appendQuery(u, "api_key", p.client.Token())
	u = appendQuery(u, "PlaySessionId", playSessionID)
	return u
}

func (p *Planner) transcodeURL(itemID string, source models.MediaSource, playSessionID string, opts Options) string {
	container := p.transcodeContainer(source, opts)

	var u string
	if source.TranscodingURL != "" {
		// reuse the server's prepared transcode URL, only filling gaps
		u = joinURL(p.client.BaseURL(), source.TranscodingURL)
	} else {
		u = joinURL(p.client.BaseURL(), "/Videos/"+itemID+"/master.m3u8")
		u = appendQuery(u, "MediaSourceId", source.ID)
		u = appendQuery(u, "DeviceId", p.client.DeviceID())
		u = appendQuery(u, "VideoCodec", strings.Join(p.profile.NativeVideoCodecs, ","))
		u = appendQuery(u, "AudioCodec", p.profile.TranscodeAudioCodecs)
		if p.profile.MaxAudioChannels > 0 {
			u = appendQuery(u, "MaxAudioChannels", strconv.Itoa(p.profile.MaxAudioChannels))
		}
		if p.profile.MaxStreamingBitrate > 0 {
			u = appendQuery(u, "VideoBitrate", strconv.Itoa(p.profile.MaxStreamingBitrate))
		}
		u = appendQuery(u, "SegmentContainer", container)
		// fast start and accurate seeking
		u = appendQuery(u, "MinSegments", "1")
		u = appendQuery(u, "BreakOnNonKeyFrames", "true")
	}

	u = appendQuery(u, "api_key", p.client.Token())
	u = appendQuery(u, "PlaySessionId", playSessionID)

	if opts.AudioIndex != nil {
		u = appendQuery(u, "AudioStreamIndex", strconv.Itoa(*opts.AudioIndex))
	}
	if opts.BurnInSubtitle && opts.SubtitleIndex != nil {
		u = appendQuery(u, "SubtitleStreamIndex", strconv.Itoa(*opts.SubtitleIndex))
		u = appendQuery(u, "SubtitleMethod", "Encode")
	}
	return u
}

// transcodeContainer picks mp4 when the video track survives untouched,
// ts whenever burn-in (or a non-native codec) forces a video encode.
func (p *Planner) transcodeContainer(source models.MediaSource, opts Options) string {
	if opts.BurnInSubtitle {
		return "ts"
	}
	if video, ok := source.VideoStream(); ok && p.profile.nativeVideo(video.Codec) {
		return "mp4"
	}
	return "ts"
}

func (p *Planner) selectSubtitle(source models.MediaSource, opts Options) *models.SubtitleSelection {
	if opts.BurnInSubtitle {
		if opts.SubtitleIndex == nil {
			return nil
		}
		stream, ok := source.StreamByIndex(*opts.SubtitleIndex)
		if !ok || stream.Type != models.StreamTypeSubtitle {
			return nil
		}
		return &models.SubtitleSelection{Stream: stream, BurnedIn: true}
	}

	if opts.SubtitleIndex != nil {
		stream, ok := source.StreamByIndex(*opts.SubtitleIndex)
		if !ok || stream.Type != models.StreamTypeSubtitle {
			return nil
		}
		return &models.SubtitleSelection{Stream: stream}
	}

	subs := source.StreamsOfType(models.StreamTypeSubtitle)
	if p.profile.SubtitleLanguage != "" {
		for _, s := range subs {
			if s.IsExternal && textSubtitleCodecs[s.Codec] && sameLanguage(s.Language, p.profile.SubtitleLanguage) {
				return &models.SubtitleSelection{Stream: s}
			}
		}
	}
	for _, s := range subs {
		if s.IsExternal && textSubtitleCodecs[s.Codec] {
			return &models.SubtitleSelection{Stream: s}
		}
	}
	for _, s := range subs {
		if s.IsDefault && textSubtitleCodecs[s.Codec] {
			return &models.SubtitleSelection{Stream: s}
		}
	}
	for _, s := range subs {
		if textSubtitleCodecs[s.Codec] {
			return &models.SubtitleSelection{Stream: s}
		}
	}
	return nil
}

// sameLanguage compares by language base so the server's 3-letter codes
// ("eng") match 2-letter settings values ("en").
func sameLanguage(a, b string) bool {
	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	ba, _ := ta.Base()
	bb, _ := tb.Base()
	return ba == bb
}
