// Package metrics exposes per-camera Prometheus counters. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "motionwatch"

// Result labels.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

type Metrics struct {
	frames        *prometheus.CounterVec
	readErrors    *prometheus.CounterVec
	reconnects    *prometheus.CounterVec
	motionEvents  *prometheus.CounterVec
	suppressed    *prometheus.CounterVec
	recordings    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	recordSeconds *prometheus.HistogramVec
	detectSeconds *prometheus.HistogramVec
	workerState   *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames read from each camera.",
		}, []string{"camera"}),
		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_errors_total",
			Help:      "Failed frame reads.",
		}, []string{"camera"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect attempts by result.",
		}, []string{"camera", "result"}),
		motionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "motion_events_total",
			Help:      "Frames in which motion above the minimum area was found.",
		}, []string{"camera"}),
		suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_events_total",
			Help:      "Motion events ignored because the cooldown gate was closed.",
		}, []string{"camera"}),
		recordings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Snapshot and clip captures by result.",
		}, []string{"camera", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by result.",
		}, []string{"camera", "result"}),
		recordSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Wall time spent capturing one event.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}, []string{"camera"}),
		detectSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detect_duration_seconds",
			Help:      "Time spent in one detection call.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"camera"}),
		workerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_state",
			Help:      "Worker lifecycle state: 0 running, 1 stopping, 2 stopped.",
		}, []string{"camera"}),
	}

	reg.MustRegister(
		m.frames, m.readErrors, m.reconnects, m.motionEvents, m.suppressed,
		m.recordings, m.notifications, m.recordSeconds, m.detectSeconds, m.workerState,
	)
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameRead(camera string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(camera).Inc()
}

func (m *Metrics) ReadFailed(camera string) {
	if m == nil {
		return
	}
	m.readErrors.WithLabelValues(camera).Inc()
}

func (m *Metrics) Reconnected(camera string, err error) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(camera, result(err)).Inc()
}

func (m *Metrics) MotionDetected(camera string, took time.Duration, found bool) {
	if m == nil {
		return
	}
	m.detectSeconds.WithLabelValues(camera).Observe(took.Seconds())
	if found {
		m.motionEvents.WithLabelValues(camera).Inc()
	}
}

func (m *Metrics) Suppressed(camera string) {
	if m == nil {
		return
	}
	m.suppressed.WithLabelValues(camera).Inc()
}

func (m *Metrics) Recorded(camera string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.recordings.WithLabelValues(camera, result(err)).Inc()
	if err == nil {
		m.recordSeconds.WithLabelValues(camera).Observe(took.Seconds())
	}
}

func (m *Metrics) Notified(camera string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(camera, result(err)).Inc()
}

func (m *Metrics) SetWorkerState(camera string, state int) {
	if m == nil {
		return
	}
	m.workerState.WithLabelValues(camera).Set(float64(state))
}

func result(err error) string {
	if err != nil {
		return ResultFailed
	}
	return ResultOK
}
