package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"couchplay/models"
)

var (
	// ErrTimeout marks a request that exceeded its deadline.
	ErrTimeout = errors.New("media server request timed out")
	// ErrRequestFailed marks a non-2xx response.
	ErrRequestFailed = errors.New("media server request failed")
)

// Client talks to a Jellyfin/Emby-compatible media server.
type Client struct {
	baseURL    string
	token      string
	userID     string
	deviceID   string
	deviceName string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a media server client. baseURL must not have a trailing slash.
func NewClient(baseURL, token, userID, deviceID, deviceName string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		userID:     userID,
		deviceID:   deviceID,
		deviceName: deviceName,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

func (c *Client) BaseURL() string  { return c.baseURL }
func (c *Client) Token() string    { return c.token }
func (c *Client) UserID() string   { return c.userID }
func (c *Client) DeviceID() string { return c.deviceID }

// wire types (server JSON is PascalCase)

type userDataDto struct {
	PlaybackPositionTicks int64 `json:"PlaybackPositionTicks"`
	Played                bool  `json:"Played"`
}

type baseItemDto struct {
	ID                string           `json:"Id"`
	Name              string           `json:"Name"`
	Type              string           `json:"Type"`
	SeriesID          string           `json:"SeriesId"`
	SeriesName        string           `json:"SeriesName"`
	SeasonID          string           `json:"SeasonId"`
	ParentIndexNumber int              `json:"ParentIndexNumber"`
	IndexNumber       int              `json:"IndexNumber"`
	RunTimeTicks      int64            `json:"RunTimeTicks"`
	UserData          *userDataDto     `json:"UserData"`
	MediaStreams      []mediaStreamDto `json:"MediaStreams"`
}

type itemsResult struct {
	Items []baseItemDto `json:"Items"`
}

type mediaStreamDto struct {
	Index        int    `json:"Index"`
	Type         string `json:"Type"`
	Codec        string `json:"Codec"`
	Language     string `json:"Language"`
	DisplayTitle string `json:"DisplayTitle"`
	IsDefault    bool   `json:"IsDefault"`
	IsExternal   bool   `json:"IsExternal"`
	IsForced     bool   `json:"IsForced"`
	Channels     int    `json:"Channels"`
	Width        int    `json:"Width"`
	Height       int    `json:"Height"`
	AspectRatio  string `json:"AspectRatio"`
	DeliveryURL  string `json:"DeliveryUrl"`
}

type mediaSourceDto struct {
	ID                  string           `json:"Id"`
	Name                string           `json:"Name"`
	Container           string           `json:"Container"`
	SupportsDirectPlay  bool             `json:"SupportsDirectPlay"`
	SupportsTranscoding bool             `json:"SupportsTranscoding"`
	TranscodingURL      string           `json:"TranscodingUrl"`
	MediaStreams        []mediaStreamDto `json:"MediaStreams"`
}

type playbackInfoResponse struct {
	MediaSources  []mediaSourceDto `json:"MediaSources"`
	PlaySessionID string           `json:"PlaySessionId"`
}

func (d baseItemDto) toModel() models.MediaItem {
	item := models.MediaItem{
		ID:            d.ID,
		Name:          d.Name,
		Type:          d.Type,
		SeriesID:      d.SeriesID,
		SeriesName:    d.SeriesName,
		SeasonID:      d.SeasonID,
		SeasonNumber:  d.ParentIndexNumber,
		EpisodeNumber: d.IndexNumber,
		RuntimeTicks:  d.RunTimeTicks,
	}
	if d.UserData != nil {
		item.ResumePositionTicks = d.UserData.PlaybackPositionTicks
		item.Played = d.UserData.Played
	}
	return item
}

func (d mediaStreamDto) toModel() models.MediaStream {
	return models.MediaStream{
		Index:        d.Index,
		Type:         models.StreamType(d.Type),
		Codec:        strings.ToLower(d.Codec),
		Language:     d.Language,
		DisplayTitle: d.DisplayTitle,
		IsDefault:    d.IsDefault,
		IsExternal:   d.IsExternal,
		IsForced:     d.IsForced,
		Channels:     d.Channels,
		Width:        d.Width,
		Height:       d.Height,
		AspectRatio:  d.AspectRatio,
		DeliveryURL:  d.DeliveryURL,
	}
}

func (d mediaSourceDto) toModel() models.MediaSource {
	src := models.MediaSource{
		ID:                  d.ID,
		Name:                d.Name,
		Container:           d.Container,
		SupportsDirectPlay:  d.SupportsDirectPlay,
		SupportsTranscoding: d.SupportsTranscoding,
		TranscodingURL:      d.TranscodingURL,
	}
	for _, st := range d.MediaStreams {
		src.Streams = append(src.Streams, st.toModel())
	}
	return src
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Emby-Token", c.token)
	req.Header.Set("X-Emby-Authorization",
		fmt.Sprintf(`MediaBrowser Client="couchplay", Device="%s", DeviceId="%s", Version="1.0"`, c.deviceName, c.deviceID))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s %s", ErrTimeout, method, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrRequestFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrRequestFailed, method, path, resp.StatusCode)
	}
	return data, nil
}

// getJSON fetches with a bounded retry for transient failures. Timeouts are
// not retried; the caller's deadline is already spent.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return retry.Do(
		func() error {
			data, err := c.do(ctx, http.MethodGet, path, query, nil)
			if err != nil {
				return err
			}
			return json.Unmarshal(data, out)
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(300*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !errors.Is(err, ErrTimeout) }),
	)
}

// Item fetches full item detail for one library item.
func (c *Client) Item(ctx context.Context, itemID string) (models.MediaItem, error) {
	var dto baseItemDto
	if err := c.getJSON(ctx, "/Users/"+c.userID+"/Items/"+itemID, nil, &dto); err != nil {
		return models.MediaItem{}, err
	}
	return dto.toModel(), nil
}

// PlaybackInfoRequest carries the client hints for source resolution.
type PlaybackInfoRequest struct {
	StartPositionTicks  int64
	AudioStreamIndex    *int
	SubtitleStreamIndex *int
	MaxStreamingBitrate int
	ForceTranscode      bool
}

// PlaybackInfo is the resolved set of playable sources for an item.
type PlaybackInfo struct {
	PlaySessionID string
	Sources       []models.MediaSource
}

// PlaybackInfo posts the playback info request and returns the server's
// resolved sources. A missing PlaySessionId is replaced with a local one so
// progress reports always carry a session.
func (c *Client) PlaybackInfo(ctx context.Context, itemID string, req PlaybackInfoRequest) (*PlaybackInfo, error) {
	query := url.Values{}
	query.Set("UserId", c.userID)
	query.Set("StartTimeTicks", strconv.FormatInt(req.StartPositionTicks, 10))
	query.Set("AutoOpenLiveStream", "false")
	if req.MaxStreamingBitrate > 0 {
		query.Set("MaxStreamingBitrate", strconv.Itoa(req.MaxStreamingBitrate))
	}
	if req.AudioStreamIndex != nil {
		query.Set("AudioStreamIndex", strconv.Itoa(*req.AudioStreamIndex))
	}
	if req.SubtitleStreamIndex != nil {
		query.Set("SubtitleStreamIndex", strconv.Itoa(*req.SubtitleStreamIndex))
	}
	if req.ForceTranscode {
		query.Set("EnableDirectPlay", "false")
		query.Set("EnableDirectStream", "false")
	}

	data, err := c.do(ctx, http.MethodPost, "/Items/"+itemID+"/PlaybackInfo", query, struct{}{})
	if err != nil {
		return nil, err
	}
	var resp playbackInfoResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode playback info: %v", ErrRequestFailed, err)
	}

	info := &PlaybackInfo{PlaySessionID: resp.PlaySessionID}
	if info.PlaySessionID == "" {
		info.PlaySessionID = uuid.NewString()
	}
	for _, src := range resp.MediaSources {
		info.Sources = append(info.Sources, src.toModel())
	}
	return info, nil
}

// AnamorphicHint checks whether the item's video stream reports a display
// aspect that differs from its storage aspect. Best effort; callers treat an
// error as "not anamorphic".
func (c *Client) AnamorphicHint(ctx context.Context, itemID string) (bool, error) {
	var dto baseItemDto
	query := url.Values{}
	query.Set("Fields", "MediaStreams")
	if err := c.getJSON(ctx, "/Users/"+c.userID+"/Items/"+itemID, query, &dto); err != nil {
		return false, err
	}
	for _, st := range dto.MediaStreams {
		if st.Type != string(models.StreamTypeVideo) {
			continue
		}
		return isAnamorphic(st.AspectRatio, st.Width, st.Height), nil
	}
	return false, nil
}

func isAnamorphic(aspect string, width, height int) bool {
	if aspect == "" || width <= 0 || height <= 0 {
		return false
	}
	parts := strings.Split(aspect, ":")
	if len(parts) != 2 {
		return false
	}
	aw, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	ah, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil || ah == 0 {
		return false
	}
	display := aw / ah
	storage := float64(width) / float64(height)
	diff := display - storage
	if diff < 0 {
		diff = -diff
	}
	return diff > 0.01
}

// SubtitleText downloads one subtitle stream converted to SRT.
func (c *Client) SubtitleText(ctx context.Context, itemID, sourceID string, index int) ([]byte, error) {
	path := fmt.Sprintf("/Videos/%s/%s/Subtitles/%d/0/Stream.srt", itemID, sourceID, index)
	return c.do(ctx, http.MethodGet, path, nil, nil)
}

// Seasons lists a series' seasons sorted by the server (season number order).
func (c *Client) Seasons(ctx context.Context, seriesID string) ([]models.MediaItem, error) {
	query := url.Values{}
	query.Set("userId", c.userID)
	var result itemsResult
	if err := c.getJSON(ctx, "/Shows/"+seriesID+"/Seasons", query, &result); err != nil {
		return nil, err
	}
	items := make([]models.MediaItem, 0, len(result.Items))
	for _, dto := range result.Items {
		items = append(items, dto.toModel())
	}
	return items, nil
}

// Episodes lists one season's episodes in episode order.
func (c *Client) Episodes(ctx context.Context, seriesID, seasonID string) ([]models.MediaItem, error) {
	query := url.Values{}
	query.Set("userId", c.userID)
	query.Set("seasonId", seasonID)
	var result itemsResult
	if err := c.getJSON(ctx, "/Shows/"+seriesID+"/Episodes", query, &result); err != nil {
		return nil, err
	}
	items := make([]models.MediaItem, 0, len(result.Items))
	for _, dto := range result.Items {
		items = append(items, dto.toModel())
	}
	return items, nil
}

// PlaybackReport is one progress report against a live play session.
type PlaybackReport struct {
	ItemID        string
	SourceID      string
	PlaySessionID string
	PositionMs    int64
	IsPaused      bool
	Method        models.PlayMethod
}

func (r PlaybackReport) body() map[string]any {
	return map[string]any{
		"ItemId":        r.ItemID,
		"MediaSourceId": r.SourceID,
		"PlaySessionId": r.PlaySessionID,
		"PositionTicks": r.PositionMs * models.TicksPerMillisecond,
		"IsPaused":      r.IsPaused,
		"PlayMethod":    string(r.Method),
	}
}

// ReportPlaying announces session start.
func (c *Client) ReportPlaying(ctx context.Context, r PlaybackReport) error {
	_, err := c.do(ctx, http.MethodPost, "/Sessions/Playing", nil, r.body())
	return err
}

// ReportProgress updates the server-side play position.
func (c *Client) ReportProgress(ctx context.Context, r PlaybackReport) error {
	_, err := c.do(ctx, http.MethodPost, "/Sessions/Playing/Progress", nil, r.body())
	return err
}

// ReportStopped closes the server-side session.
func (c *Client) ReportStopped(ctx context.Context, r PlaybackReport) error {
	_, err := c.do(ctx, http.MethodPost, "/Sessions/Playing/Stopped", nil, r.body())
	return err
}

// MarkPlayed flags the item watched.
func (c *Client) MarkPlayed(ctx context.Context, itemID string) error {
	_, err := c.do(ctx, http.MethodPost, "/Users/"+c.userID+"/PlayedItems/"+itemID, nil, nil)
	return err
}
