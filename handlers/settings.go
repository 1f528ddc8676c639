package handlers

import (
	"encoding/json"
	"net/http"

	"couchplay/config"
)

// SettingsHandler exposes the on-disk configuration. Changes to timing and
// codec settings take effect on the next session start.
type SettingsHandler struct {
	Manager *config.Manager
}

func NewSettingsHandler(m *config.Manager) *SettingsHandler {
	return &SettingsHandler{Manager: m}
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Manager.Load()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// never hand the server token to the frontend
	s.MediaServer.Token = ""
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	current, err := h.Manager.Load()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s := current
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&s); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// a blanked token in the request means keep the stored one
	if s.MediaServer.Token == "" {
		s.MediaServer.Token = current.MediaServer.Token
	}
	s.Server.PIN = current.Server.PIN

	if err := h.Manager.Save(s); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.MediaServer.Token = ""
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

func (h *SettingsHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
