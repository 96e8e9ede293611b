// Package display renders the latest frame of every camera and owns the
// shutdown sequence of the workers.
package display

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/mikeyg42/motionwatch/internal/framestream"
	"github.com/mikeyg42/motionwatch/internal/logging"
)

// Renderer shows one camera's frame. It must not keep frame after Render
// returns.
type Renderer interface {
	Render(cameraID string, frame gocv.Mat) error
	Close() error
}

// KeySource reports a pressed key, or -1 when none was pressed within wait.
type KeySource interface {
	PollKey(wait time.Duration) int
}

// Worker is the part of a camera worker the loop needs to shut it down.
type Worker interface {
	ID() string
	Stop()
	Done() <-chan struct{}
}

// Feed pairs a camera with the slot its worker publishes to.
type Feed struct {
	CameraID string
	Slot     *framestream.Slot
}

// Reasons Run returned.
const (
	ReasonQuitKey        = "quit key"
	ReasonCanceled       = "canceled"
	ReasonWorkersStopped = "all workers stopped"
)

// QuitKey ends the loop when read from the KeySource.
const QuitKey = 'q'

type Loop struct {
	feeds     []Feed
	workers   []Worker
	renderers []Renderer
	keys      KeySource
	interval  time.Duration
	logger    *zap.Logger

	lastSeq map[string]uint64
}

// Option customizes a Loop.
type Option func(*Loop)

func WithRenderer(r Renderer) Option {
	return func(l *Loop) { l.renderers = append(l.renderers, r) }
}

func WithKeySource(k KeySource) Option {
	return func(l *Loop) { l.keys = k }
}

func New(feeds []Feed, workers []Worker, interval time.Duration, logger *zap.Logger, opts ...Option) *Loop {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	l := &Loop{
		feeds:    feeds,
		workers:  workers,
		interval: interval,
		logger:   logging.Component(logger, "display"),
		lastSeq:  make(map[string]uint64, len(feeds)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run renders until ctx is canceled or the quit key is pressed, then stops
// every worker, waits for all of them and releases slots and renderers. It
// returns why it stopped.
func (l *Loop) Run(ctx context.Context) string {
	reason := l.poll(ctx)
	l.logger.Info("Shutting down", zap.String("reason", reason))
	l.shutdown()
	return reason
}

func (l *Loop) poll(ctx context.Context) string {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		l.renderOnce()

		if l.keys != nil && l.keys.PollKey(time.Millisecond)&0xff == QuitKey {
			return ReasonQuitKey
		}

		select {
		case <-ctx.Done():
			return ReasonCanceled
		case <-l.allStopped():
			return ReasonWorkersStopped
		case <-ticker.C:
		}
	}
}

// renderOnce shows every feed that published since the last pass.
func (l *Loop) renderOnce() {
	if len(l.renderers) == 0 {
		return
	}
	for _, feed := range l.feeds {
		if feed.Slot.Seq() == l.lastSeq[feed.CameraID] {
			continue
		}
		snap, ok := feed.Slot.Snapshot()
		if !ok {
			continue
		}
		l.lastSeq[feed.CameraID] = snap.Seq
		for _, r := range l.renderers {
			if err := r.Render(feed.CameraID, snap.Mat); err != nil {
				l.logger.Debug("Render failed", zap.String("camera", feed.CameraID), zap.Error(err))
			}
		}
		snap.Close()
	}
}

// allStopped is closed once every worker is done. With no workers it never
// fires.
func (l *Loop) allStopped() <-chan struct{} {
	if len(l.workers) == 0 {
		return nil
	}
	for _, w := range l.workers {
		select {
		case <-w.Done():
		default:
			return nil
		}
	}
	done := make(chan struct{})
	close(done)
	return done
}

func (l *Loop) shutdown() {
	for _, w := range l.workers {
		w.Stop()
	}
	for _, w := range l.workers {
		<-w.Done()
		l.logger.Info("Worker stopped", zap.String("camera", w.ID()))
	}
	for _, feed := range l.feeds {
		feed.Slot.Close()
	}
	for _, r := range l.renderers {
		if err := r.Close(); err != nil {
			l.logger.Warn("Failed to close renderer", zap.Error(err))
		}
	}
}
