package utils

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// NewRouter builds the root router with request logging attached.
func NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)
	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		// status polling is too chatty to log every hit
		if r.URL.Path == "/api/player/status" || r.URL.Path == "/api/player/commands" {
			return
		}
		log.Printf("[http] %s %s %d (%v)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
