// Package worker runs the per-camera acquire, detect, record and notify loop.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/mikeyg42/motionwatch/internal/camera"
	"github.com/mikeyg42/motionwatch/internal/config"
	"github.com/mikeyg42/motionwatch/internal/cooldown"
	"github.com/mikeyg42/motionwatch/internal/events"
	"github.com/mikeyg42/motionwatch/internal/framestream"
	"github.com/mikeyg42/motionwatch/internal/logging"
	"github.com/mikeyg42/motionwatch/internal/metrics"
	"github.com/mikeyg42/motionwatch/internal/motion"
	"github.com/mikeyg42/motionwatch/internal/notification"
	"github.com/mikeyg42/motionwatch/internal/recorder"
)

// State is the lifecycle of a worker. It only moves forward.
type State int32

const (
	Running State = iota
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Notifier delivers an alert for a recorded event.
type Notifier interface {
	Send(ctx context.Context, alert notification.Alert) error
}

// EventPublisher announces recorded events to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.MotionEvent) error
}

// Deps are the collaborators of one worker. Publisher and Metrics are
// optional.
type Deps struct {
	Source    camera.Source
	Detector  *motion.Detector
	Recorder  *recorder.Recorder
	Notifier  Notifier
	Slot      *framestream.Slot
	Cooldown  config.CooldownConfig
	Publisher EventPublisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Option customizes a Worker.
type Option func(*Worker)

// WithClock replaces time.Now for cooldown decisions and event times.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// WithReconnectBackoff sets the pacing between failed reconnects.
func WithReconnectBackoff(b backoff.BackOff) Option {
	return func(w *Worker) { w.reconnectBackoff = b }
}

// Worker owns one camera. Its detection state and cooldown gate live on the
// loop goroutine; only the published frame slot is shared.
type Worker struct {
	Deps

	id               string
	now              func() time.Time
	reconnectBackoff backoff.BackOff
	logger           *zap.Logger

	state     atomic.Int32
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
}

func New(deps Deps, opts ...Option) *Worker {
	id := deps.Source.Camera().ID

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 500 * time.Millisecond
	exp.MaxInterval = 30 * time.Second
	exp.MaxElapsedTime = 0

	w := &Worker{
		Deps:             deps,
		id:               id,
		now:              time.Now,
		reconnectBackoff: exp,
		logger:           logging.Component(deps.Logger, "worker").With(zap.String("camera", id)),
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.Metrics.SetWorkerState(id, int(Running))
	return w
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) State() State { return State(w.state.Load()) }

// Start runs the loop on a new goroutine. Calling it again has no effect.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() { go w.run(ctx) })
}

// Stop asks the loop to finish its current iteration and exit. It does not
// wait; use Wait. A recording in progress runs to completion first.
func (w *Worker) Stop() {
	w.requestStop()
}

// Wait blocks until the worker has reached Stopped. Start must have been
// called.
func (w *Worker) Wait() {
	<-w.done
}

// Done is closed once the worker has reached Stopped.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) requestStop() {
	if w.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		w.Metrics.SetWorkerState(w.id, int(Stopping))
		w.logger.Info("Stopping")
		close(w.stop)
	}
}

func (w *Worker) run(ctx context.Context) {
	detection := motion.NewState()
	var gate cooldown.Gate

	defer func() {
		detection.Close()
		if err := w.Source.Close(); err != nil {
			w.logger.Warn("Failed to close source", zap.Error(err))
		}
		w.state.Store(int32(Stopped))
		w.Metrics.SetWorkerState(w.id, int(Stopped))
		w.logger.Info("Stopped")
		close(w.done)
	}()

	gate.ArmInitial(w.now(), w.Cooldown.Initial)
	w.logger.Info("Started", zap.Stringer("source", w.Source.Camera()), zap.Time("gate_opens", gate.Deadline()))

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			w.requestStop()
			return
		default:
		}

		w.iterate(ctx, detection, &gate)
	}
}

// iterate is one pass of the loop: acquire, detect, maybe record and
// notify, then publish.
func (w *Worker) iterate(ctx context.Context, detection *motion.State, gate *cooldown.Gate) {
	frame, err := w.Source.Read()
	if err != nil {
		w.Metrics.ReadFailed(w.id)
		w.logger.Warn("Frame read failed, reconnecting", zap.Error(err))
		w.reconnect(ctx, detection)
		return
	}
	w.Metrics.FrameRead(w.id)

	started := time.Now()
	ev, found, err := w.Detector.Detect(detection, frame.Mat)
	w.Metrics.MotionDetected(w.id, time.Since(started), found)
	if err != nil {
		w.logger.Warn("Detection failed", zap.Error(err))
		frame.Close()
		return
	}

	if found {
		w.Detector.Annotate(&frame.Mat, ev)

		now := w.now()
		if gate.IsOpen(now) {
			// Published first so the clip frames that follow replace it.
			snapshot := frame.Mat.Clone()
			w.Slot.Publish(frame.Mat, frame.CapturedAt)
			w.trigger(ctx, snapshot, ev, now, gate)
			snapshot.Close()
			return
		}
		w.Metrics.Suppressed(w.id)
		w.logger.Debug("Motion suppressed by cooldown",
			zap.Stringer("region", ev.Region),
			zap.Duration("remaining", gate.Deadline().Sub(now)))
	}

	w.Slot.Publish(frame.Mat, frame.CapturedAt)
}

// trigger records the event and notifies. snapshot stays owned by the caller.
func (w *Worker) trigger(ctx context.Context, snapshot gocv.Mat, ev motion.Event, now time.Time, gate *cooldown.Gate) {
	w.logger.Info("Motion detected",
		zap.Stringer("region", ev.Region),
		zap.Float64("area", ev.Area),
		zap.Time("at", now))

	started := time.Now()
	art, err := w.Recorder.Capture(w.Source, snapshot, now, w.publishRecorded)
	w.Metrics.Recorded(w.id, time.Since(started), err)
	if err != nil {
		w.logger.Error("Recording failed, skipping notification", zap.Error(err))
		return
	}

	alert := notification.NewMotionAlert(w.id, art.Token, art.SnapshotPath, now, ev.Region, ev.Area)
	sendErr := w.Notifier.Send(ctx, alert)
	w.Metrics.Notified(w.id, sendErr)
	if sendErr != nil {
		w.logger.Error("Notification failed", zap.String("token", art.Token), zap.Error(sendErr))
	} else {
		w.logger.Info("Notification sent", zap.String("token", art.Token), zap.String("event_id", alert.EventID))
	}

	// Re-armed whether or not delivery succeeded.
	gate.ArmAfterNotify(w.now(), w.Cooldown.Steady)

	if w.Publisher != nil {
		msg := events.MotionEvent{
			EventID:      alert.EventID,
			CameraID:     w.id,
			DetectedAt:   now,
			Token:        art.Token,
			Region:       events.RegionOf(ev.Region),
			Area:         ev.Area,
			SnapshotPath: art.SnapshotPath,
			ClipPath:     art.ClipPath,
			Notified:     sendErr == nil,
		}
		if err := w.Publisher.Publish(ctx, msg); err != nil {
			w.logger.Warn("Event publish failed", zap.Error(err))
		}
	}
}

// publishRecorded keeps the preview moving while a clip is recorded.
func (w *Worker) publishRecorded(frame camera.Frame) {
	w.Slot.Publish(frame.Mat, frame.CapturedAt)
}

// reconnect reopens the source. A failed attempt is paced by the backoff so
// a dead feed does not spin, but a stop request cuts the wait short.
func (w *Worker) reconnect(ctx context.Context, detection *motion.State) {
	err := w.Source.Reconnect()
	w.Metrics.Reconnected(w.id, err)
	if err == nil {
		w.reconnectBackoff.Reset()
		detection.Reset()
		return
	}

	wait := w.reconnectBackoff.NextBackOff()
	w.logger.Warn("Reconnect failed, will retry", zap.Duration("retry_in", wait), zap.Error(err))
	if wait == backoff.Stop || wait <= 0 {
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-w.stop:
	case <-ctx.Done():
	}
}
