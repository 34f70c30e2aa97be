package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func TestRequestLogger_RouteAndEntry(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))
	r.Post("/e/{entryID}/open", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	tests := []struct {
		name   string
		method string
		target string
		status int
		level  string
		route  string
		entry  string
	}{
		{"entry route", http.MethodPost, "/e/tides/open?wait=true", http.StatusAccepted, "INFO", "/e/{entryID}/open", "tides"},
		{"server error", http.MethodGet, "/boom", http.StatusBadGateway, "WARN", "/boom", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))

			var line map[string]any
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("decode log line: %v", err)
			}
			if line["level"] != tt.level {
				t.Errorf("expected level %s, got %v", tt.level, line["level"])
			}
			if line["status"] != float64(tt.status) {
				t.Errorf("expected status %d, got %v", tt.status, line["status"])
			}
			if line["route"] != tt.route {
				t.Errorf("expected route %q, got %v", tt.route, line["route"])
			}
			if got, _ := line["entry_id"].(string); got != tt.entry {
				t.Errorf("expected entry %q, got %q", tt.entry, got)
			}
			if id, _ := line["request_id"].(string); id == "" {
				t.Error("expected a request id")
			}
		})
	}
}
