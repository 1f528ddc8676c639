package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"couchplay/models"
	"couchplay/services/osd"
	playbacksvc "couchplay/services/playback"
	"couchplay/services/server"
	"couchplay/services/stream"
)

type playerService interface {
	Start(ctx context.Context, item models.MediaItem, opts stream.Options) error
	Stop()
	HandleInput(ev osd.Event) bool
	Status() playbacksvc.Snapshot
	OnEngineEvent(ev playbacksvc.Event)
}

type itemClient interface {
	Item(ctx context.Context, itemID string) (models.MediaItem, error)
}

type frontendEngine interface {
	DrainCommands() []playbacksvc.Command
	UpdateState(positionMs, durationMs int64, paused bool)
}

var _ playerService = (*playbacksvc.Service)(nil)
var _ itemClient = (*server.Client)(nil)
var _ frontendEngine = (*playbacksvc.RemoteEngine)(nil)

// PlayerHandler is the frontend's surface onto the playback controller:
// session control and remote input on one side, the polled command queue and
// transport reports on the other.
type PlayerHandler struct {
	Service playerService
	Client  itemClient
	Engine  frontendEngine
}

func NewPlayerHandler(svc playerService, client itemClient, engine frontendEngine) *PlayerHandler {
	return &PlayerHandler{Service: svc, Client: client, Engine: engine}
}

// inputEvents maps the wire names the frontend sends to OSD events.
var inputEvents = map[string]osd.Event{
	"up":        osd.EventUp,
	"down":      osd.EventDown,
	"left":      osd.EventLeft,
	"right":     osd.EventRight,
	"enter":     osd.EventEnter,
	"back":      osd.EventBack,
	"playpause": osd.EventPlayPauseKey,
	"next":      osd.EventNextKey,
	"previous":  osd.EventPreviousKey,
	"audio":     osd.EventAudioKey,
	"subtitles": osd.EventSubtitlesKey,
}

// Start begins playback of an item by id, with optional track overrides.
func (h *PlayerHandler) Start(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ItemID          string `json:"itemId"`
		AudioIndex      *int   `json:"audioIndex,omitempty"`
		SubtitleIndex   *int   `json:"subtitleIndex,omitempty"`
		BurnInSubtitle  bool   `json:"burnInSubtitle,omitempty"`
		StartPositionMs int64  `json:"startPositionMs,omitempty"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.ItemID == "" {
		http.Error(w, "itemId is required", http.StatusBadRequest)
		return
	}

	item, err := h.Client.Item(r.Context(), request.ItemID)
	if err != nil {
		log.Printf("[player-handler] item lookup failed for %s: %v", request.ItemID, err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	opts := stream.Options{
		AudioIndex:      request.AudioIndex,
		SubtitleIndex:   request.SubtitleIndex,
		BurnInSubtitle:  request.BurnInSubtitle,
		StartPositionMs: request.StartPositionMs,
	}
	if err := h.Service.Start(r.Context(), item, opts); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, stream.ErrNoPlayableSource) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Service.Status())
}

// Input feeds one remote-control event through the session.
func (h *PlayerHandler) Input(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Event string `json:"event"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ev, ok := inputEvents[request.Event]
	if !ok {
		http.Error(w, "unknown event", http.StatusBadRequest)
		return
	}

	consumed := h.Service.HandleInput(ev)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"consumed": consumed})
}

// Stop ends the current session.
func (h *PlayerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.Service.Stop()
	w.WriteHeader(http.StatusNoContent)
}

// Status returns the render snapshot the frontend polls.
func (h *PlayerHandler) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Service.Status())
}

// Commands drains the queued engine commands for the frontend to execute.
func (h *PlayerHandler) Commands(w http.ResponseWriter, r *http.Request) {
	cmds := h.Engine.DrainCommands()
	if cmds == nil {
		cmds = []playbacksvc.Command{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cmds)
}

// EngineState ingests the frontend's transport report.
func (h *PlayerHandler) EngineState(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PositionMs int64 `json:"positionMs"`
		DurationMs int64 `json:"durationMs"`
		Paused     bool  `json:"paused"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Engine.UpdateState(request.PositionMs, request.DurationMs, request.Paused)
	w.WriteHeader(http.StatusNoContent)
}

// EngineEvent ingests completion and failure notifications from the frontend.
func (h *PlayerHandler) EngineEvent(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Kind  string `json:"kind"`
		Error string `json:"error,omitempty"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch request.Kind {
	case "completed":
		h.Service.OnEngineEvent(playbacksvc.Event{Kind: playbacksvc.EventCompleted})
	case "failed":
		h.Service.OnEngineEvent(playbacksvc.Event{
			Kind: playbacksvc.EventFailed,
			Err:  errors.New(request.Error),
		})
	default:
		http.Error(w, "unknown event kind", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Options handles CORS preflight.
func (h *PlayerHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
