// Package recorder writes the snapshot and clip for a triggered motion event.
package recorder

import (
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/mikeyg42/motionwatch/internal/camera"
	"github.com/mikeyg42/motionwatch/internal/config"
	"github.com/mikeyg42/motionwatch/internal/logging"
)

// DefaultMaxReadRetries bounds consecutive failed reads within one clip.
const DefaultMaxReadRetries = 3

// FrameObserver receives every clip frame after it is written and takes
// ownership of it. Workers use it to keep the live preview moving while a
// clip is being recorded.
type FrameObserver func(frame camera.Frame)

// Recorder captures artifacts synchronously on the calling goroutine.
type Recorder struct {
	snapshotDir     string
	clipDir         string
	codec           string
	durationSeconds int
	maxReadRetries  int

	newWriter     WriterFactory
	writeSnapshot SnapshotWriter
	logger        *zap.Logger
}

// Option customizes a Recorder.
type Option func(*Recorder)

// WithWriterFactory replaces the OpenCV clip writer.
func WithWriterFactory(f WriterFactory) Option {
	return func(r *Recorder) { r.newWriter = f }
}

// WithSnapshotWriter replaces gocv.IMWrite for snapshots.
func WithSnapshotWriter(f SnapshotWriter) Option {
	return func(r *Recorder) { r.writeSnapshot = f }
}

// WithMaxReadRetries sets how many consecutive read failures a clip survives.
func WithMaxReadRetries(n int) Option {
	return func(r *Recorder) { r.maxReadRetries = n }
}

func New(cfg config.RecordingConfig, logger *zap.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		snapshotDir:     cfg.SnapshotDir,
		clipDir:         cfg.ClipDir,
		codec:           cfg.Codec,
		durationSeconds: cfg.DurationSeconds,
		maxReadRetries:  DefaultMaxReadRetries,
		newWriter:       NewVideoWriter,
		writeSnapshot:   gocv.IMWrite,
		logger:          logging.Component(logger, "recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Capture writes trigger as the event snapshot, then records
// DurationSeconds x FrameRate fresh frames from src into the event clip.
// It blocks until both files are closed. A duration of zero produces only
// the snapshot. Any failure is returned as an *Error matching ErrRecording,
// and the artifact must not be handed to a notifier.
func (r *Recorder) Capture(src camera.Source, trigger gocv.Mat, at time.Time, observe FrameObserver) (Artifact, error) {
	cam := src.Camera()
	token := Token(at)
	art := Artifact{
		CameraID:     cam.ID,
		Token:        token,
		SnapshotPath: SnapshotPath(r.snapshotDir, cam.ID, token),
		StartedAt:    time.Now(),
	}
	logger := r.logger.With(zap.String("camera", cam.ID), zap.String("token", token))

	if !r.writeSnapshot(art.SnapshotPath, trigger) {
		return art, &Error{CameraID: cam.ID, Stage: "snapshot", Path: art.SnapshotPath}
	}
	logger.Debug("Snapshot written", zap.String("path", art.SnapshotPath))

	total := r.durationSeconds * cam.FrameRate
	if total <= 0 {
		art.FinishedAt = time.Now()
		return art, nil
	}

	art.ClipPath = ClipPath(r.clipDir, cam.ID, token)
	writer, err := r.newWriter(art.ClipPath, r.codec, float64(cam.FrameRate), cam.Width, cam.Height)
	if err != nil {
		return art, &Error{CameraID: cam.ID, Stage: "open clip", Path: art.ClipPath, Err: err}
	}

	frames, err := r.record(src, writer, total, observe, logger)
	art.Frames = frames
	if closeErr := writer.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return art, &Error{CameraID: cam.ID, Stage: "clip", Path: art.ClipPath, Err: err}
	}

	art.FinishedAt = time.Now()
	logger.Info("Clip recorded",
		zap.String("path", art.ClipPath),
		zap.Int("frames", frames),
		zap.Duration("took", art.FinishedAt.Sub(art.StartedAt)))
	return art, nil
}

func (r *Recorder) record(src camera.Source, w ClipWriter, total int, observe FrameObserver, logger *zap.Logger) (int, error) {
	written, failures := 0, 0
	for written < total {
		frame, err := src.Read()
		if err != nil {
			failures++
			logger.Warn("Frame read failed during clip",
				zap.Int("written", written),
				zap.Int("consecutive_failures", failures),
				zap.Error(err))
			if failures > r.maxReadRetries {
				return written, err
			}
			if err := src.Reconnect(); err != nil {
				return written, err
			}
			continue
		}
		failures = 0

		if err := w.Write(frame.Mat); err != nil {
			frame.Close()
			return written, err
		}
		written++

		if observe != nil {
			observe(frame)
		} else {
			frame.Close()
		}
	}
	return written, nil
}
