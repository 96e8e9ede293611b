package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FrameRead("front")
	m.FrameRead("front")
	m.FrameRead("back")
	if got := testutil.ToFloat64(m.frames.WithLabelValues("front")); got != 2 {
		t.Fatalf("Expected 2 frames for front, got %v", got)
	}

	m.Notified("front", nil)
	m.Notified("front", errors.New("smtp down"))
	m.Notified("front", errors.New("smtp down"))
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("front", ResultFailed)); got != 2 {
		t.Fatalf("Expected 2 failed notifications, got %v", got)
	}
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("front", ResultOK)); got != 1 {
		t.Fatalf("Expected 1 delivered notification, got %v", got)
	}

	m.MotionDetected("front", time.Millisecond, true)
	m.MotionDetected("front", time.Millisecond, false)
	if got := testutil.ToFloat64(m.motionEvents.WithLabelValues("front")); got != 1 {
		t.Fatalf("Expected 1 motion event, got %v", got)
	}
	if n := testutil.CollectAndCount(m.detectSeconds); n != 1 {
		t.Fatalf("Expected one detect histogram series, got %d", n)
	}

	m.SetWorkerState("front", 2)
	if got := testutil.ToFloat64(m.workerState.WithLabelValues("front")); got != 2 {
		t.Fatalf("Expected worker state 2, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.FrameRead("front")
	m.ReadFailed("front")
	m.Reconnected("front", nil)
	m.MotionDetected("front", time.Millisecond, true)
	m.Suppressed("front")
	m.Recorded("front", time.Second, nil)
	m.Notified("front", nil)
	m.SetWorkerState("front", 0)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Suppressed("front")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("Failed to scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `motionwatch_suppressed_events_total{camera="front"} 1`) {
		t.Fatalf("Expected suppressed counter in output, got:\n%s", body)
	}
}
