package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/mikeyg42/motionwatch/internal/metrics"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.FrameRead("front")

	return NewServer(Options{
		Addr: "127.0.0.1:0",
		Status: func() []CameraStatus {
			return []CameraStatus{{ID: "front", State: "running", Frames: 12, Stream: "/cameras/front"}}
		},
		Streams: func(id string) http.Handler {
			if id != "front" {
				return nil
			}
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, "stream front")
			})
		},
		Metrics: metrics.Handler(reg),
	}, zaptest.NewLogger(t))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRoutes(t *testing.T) {
	h := newTestServer(t).Handler()

	testCases := []struct {
		name   string
		path   string
		status int
		body   string
	}{
		{"Health", "/api/health", http.StatusOK, `"status":"ok"`},
		{"Known stream", "/cameras/front", http.StatusOK, "stream front"},
		{"Unknown stream", "/cameras/back", http.StatusNotFound, ""},
		{"Metrics", "/metrics", http.StatusOK, `motionwatch_frames_total{camera="front"} 1`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(t, h, tc.path)
			if rec.Code != tc.status {
				t.Fatalf("Expected status %d, got %d", tc.status, rec.Code)
			}
			if tc.body != "" && !strings.Contains(rec.Body.String(), tc.body) {
				t.Fatalf("Expected body containing %q, got %q", tc.body, rec.Body.String())
			}
		})
	}
}

func TestCameraStatus(t *testing.T) {
	rec := get(t, newTestServer(t).Handler(), "/api/cameras")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Expected JSON content type, got %q", ct)
	}

	var got []CameraStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if len(got) != 1 || got[0].ID != "front" || got[0].State != "running" || got[0].Frames != 12 {
		t.Fatalf("Unexpected status %+v", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/cameras", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("Expected allowed origin header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Expected no CORS header for unknown origin, got %q", got)
	}
}
