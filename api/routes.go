package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"couchplay/handlers"
)

// pinMiddleware gates the API behind the pairing PIN. The frontend sends it
// in a header after pairing; query form is for plain video element requests.
func pinMiddleware(pin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("X-Couchplay-Pin")
		if got == "" {
			got = r.URL.Query().Get("pin")
		}
		if got != pin {
			http.Error(w, "invalid pin", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	playerHandler *handlers.PlayerHandler,
	settingsHandler *handlers.SettingsHandler,
	pin string,
) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(func(next http.Handler) http.Handler { return pinMiddleware(pin, next) })

	api.HandleFunc("/player/start", playerHandler.Start).Methods(http.MethodPost)
	api.HandleFunc("/player/start", playerHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/player/input", playerHandler.Input).Methods(http.MethodPost)
	api.HandleFunc("/player/input", playerHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/player/stop", playerHandler.Stop).Methods(http.MethodPost)
	api.HandleFunc("/player/stop", playerHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/player/status", playerHandler.Status).Methods(http.MethodGet)
	api.HandleFunc("/player/status", playerHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/player/commands", playerHandler.Commands).Methods(http.MethodGet)
	api.HandleFunc("/player/commands", playerHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/player/engine/state", playerHandler.EngineState).Methods(http.MethodPost)
	api.HandleFunc("/player/engine/state", playerHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/player/engine/event", playerHandler.EngineEvent).Methods(http.MethodPost)
	api.HandleFunc("/player/engine/event", playerHandler.Options).Methods(http.MethodOptions)

	api.HandleFunc("/settings", settingsHandler.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", settingsHandler.PutSettings).Methods(http.MethodPut)
	api.HandleFunc("/settings", settingsHandler.Options).Methods(http.MethodOptions)
}
