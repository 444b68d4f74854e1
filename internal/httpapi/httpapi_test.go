package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloudpico-station/internal/metrics"
)

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus int
		wantKey    string
		wantValue  string
		wantArch   string
	}{
		{name: "no archive", db: nil, wantStatus: http.StatusOK, wantKey: "status", wantValue: "ok", wantArch: "disabled"},
		{name: "db ok", db: fakePinger{}, wantStatus: http.StatusOK, wantKey: "status", wantValue: "ok", wantArch: "ok"},
		{name: "db down", db: fakePinger{err: errors.New("disk I/O error")}, wantStatus: http.StatusServiceUnavailable, wantKey: "message", wantValue: "archive database unreachable", wantArch: "unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(":0", NewMux(tt.db, metrics.New().Handler(), quiet()), quiet())
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body[tt.wantKey] != tt.wantValue {
				t.Errorf("%s = %q, want %q", tt.wantKey, body[tt.wantKey], tt.wantValue)
			}
			if body["archive"] != tt.wantArch {
				t.Errorf("archive = %q, want %q", body["archive"], tt.wantArch)
			}
			if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
				t.Errorf("Content-Type = %q", got)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.SampleCycles.Inc()
	mux := NewMux(nil, m.Handler(), quiet())

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "station_sample_cycles_total 1") {
		t.Errorf("metrics output missing sample counter")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	mux := NewMux(nil, metrics.New().Handler(), quiet())
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}
