package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPinMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := pinMiddleware("123456", ok)

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		method string
		want   int
	}{
		{"missing pin", func(r *http.Request) {}, http.MethodGet, http.StatusUnauthorized},
		{"wrong pin", func(r *http.Request) { r.Header.Set("X-Couchplay-Pin", "000000") }, http.MethodGet, http.StatusUnauthorized},
		{"header pin", func(r *http.Request) { r.Header.Set("X-Couchplay-Pin", "123456") }, http.MethodGet, http.StatusOK},
		{"query pin", func(r *http.Request) { r.URL.RawQuery = "pin=123456" }, http.MethodGet, http.StatusOK},
		{"preflight bypasses pin", func(r *http.Request) {}, http.MethodOptions, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/player/status", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
