package recorder

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"gocv.io/x/gocv"

	"github.com/mikeyg42/motionwatch/internal/camera"
	"github.com/mikeyg42/motionwatch/internal/camera/cameratest"
	"github.com/mikeyg42/motionwatch/internal/config"
)

type fakeWriter struct {
	mu     sync.Mutex
	frames int
	closed bool
	failAt int
}

func (w *fakeWriter) Write(frame gocv.Mat) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failAt > 0 && w.frames+1 == w.failAt {
		return errors.New("disk full")
	}
	w.frames++
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

type writerRecorder struct {
	opened []string
	writer *fakeWriter
	err    error
}

func (wr *writerRecorder) factory(path, codec string, fps float64, width, height int) (ClipWriter, error) {
	if wr.err != nil {
		return nil, wr.err
	}
	wr.opened = append(wr.opened, path)
	return wr.writer, nil
}

func testCamera() camera.Camera {
	return camera.Camera{ID: "front", Scale: 2, Width: 64, Height: 48, FrameRate: 10}
}

func newTestRecorder(t *testing.T, seconds int, wr *writerRecorder, opts ...Option) (*Recorder, config.RecordingConfig) {
	t.Helper()
	cfg := config.RecordingConfig{
		DurationSeconds: seconds,
		SnapshotDir:     t.TempDir(),
		ClipDir:         t.TempDir(),
		Codec:           "mp4v",
	}
	opts = append([]Option{WithWriterFactory(wr.factory)}, opts...)
	return New(cfg, zaptest.NewLogger(t), opts...), cfg
}

func blankSource() *cameratest.Source {
	return cameratest.NewSource(testCamera(), func(int) gocv.Mat { return cameratest.Blank(64, 48) })
}

func TestCaptureWritesDurationTimesFrameRate(t *testing.T) {
	wr := &writerRecorder{writer: &fakeWriter{}}
	rec, cfg := newTestRecorder(t, 2, wr)
	src := blankSource()

	trigger := cameratest.Blank(64, 48)
	defer trigger.Close()
	at := time.Date(2024, 3, 9, 14, 5, 7, 250e6, time.UTC)

	art, err := rec.Capture(src, trigger, at, nil)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if wr.writer.frames != 20 || art.Frames != 20 {
		t.Fatalf("Expected 20 frames, writer got %d, artifact reports %d", wr.writer.frames, art.Frames)
	}
	if !wr.writer.closed {
		t.Fatal("Expected clip writer to be closed")
	}
	if src.Reads() != 20 {
		t.Fatalf("Expected 20 fresh reads, got %d", src.Reads())
	}

	wantSnap := filepath.Join(cfg.SnapshotDir, "motion_picture_front_2024-03-09T14-05-07.250Z.jpg")
	if art.SnapshotPath != wantSnap {
		t.Fatalf("Expected snapshot path %s, got %s", wantSnap, art.SnapshotPath)
	}
	if _, err := os.Stat(art.SnapshotPath); err != nil {
		t.Fatalf("Snapshot was not written: %v", err)
	}
	wantClip := filepath.Join(cfg.ClipDir, "motion_video_front_2024-03-09T14-05-07.250Z.mp4")
	if art.ClipPath != wantClip || len(wr.opened) != 1 || wr.opened[0] != wantClip {
		t.Fatalf("Expected clip at %s, got %s (opened %v)", wantClip, art.ClipPath, wr.opened)
	}
}

func TestCaptureZeroDurationIsSnapshotOnly(t *testing.T) {
	wr := &writerRecorder{writer: &fakeWriter{}}
	rec, _ := newTestRecorder(t, 0, wr)
	src := blankSource()

	trigger := cameratest.Blank(64, 48)
	defer trigger.Close()

	art, err := rec.Capture(src, trigger, time.Now(), nil)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if art.ClipPath != "" || len(wr.opened) != 0 {
		t.Fatalf("Expected no clip, got %q (opened %v)", art.ClipPath, wr.opened)
	}
	if src.Reads() != 0 {
		t.Fatalf("Expected no reads, got %d", src.Reads())
	}
	if _, err := os.Stat(art.SnapshotPath); err != nil {
		t.Fatalf("Snapshot was not written: %v", err)
	}
}

func TestCaptureSnapshotFailure(t *testing.T) {
	wr := &writerRecorder{writer: &fakeWriter{}}
	rec, _ := newTestRecorder(t, 1, wr,
		WithSnapshotWriter(func(string, gocv.Mat) bool { return false }))

	trigger := cameratest.Blank(64, 48)
	defer trigger.Close()

	_, err := rec.Capture(blankSource(), trigger, time.Now(), nil)
	if !errors.Is(err, ErrRecording) {
		t.Fatalf("Expected ErrRecording, got %v", err)
	}
	if len(wr.opened) != 0 {
		t.Fatal("Clip should not be opened after a failed snapshot")
	}
}

func TestCaptureWriterFailures(t *testing.T) {
	tests := []struct {
		name string
		wr   *writerRecorder
	}{
		{"open fails", &writerRecorder{err: errors.New("no codec")}},
		{"write fails", &writerRecorder{writer: &fakeWriter{failAt: 4}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := newTestRecorder(t, 1, tt.wr)
			trigger := cameratest.Blank(64, 48)
			defer trigger.Close()

			_, err := rec.Capture(blankSource(), trigger, time.Now(), nil)
			if !errors.Is(err, ErrRecording) {
				t.Fatalf("Expected ErrRecording, got %v", err)
			}
			if tt.wr.writer != nil && !tt.wr.writer.closed {
				t.Fatal("Expected writer to be closed on failure")
			}
		})
	}
}

func TestCaptureReconnectsOnReadFailure(t *testing.T) {
	wr := &writerRecorder{writer: &fakeWriter{}}
	rec, _ := newTestRecorder(t, 1, wr)
	src := blankSource()
	src.Fail = func(n int) bool { return n == 3 || n == 4 }

	trigger := cameratest.Blank(64, 48)
	defer trigger.Close()

	art, err := rec.Capture(src, trigger, time.Now(), nil)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if art.Frames != 10 {
		t.Fatalf("Expected 10 frames despite failures, got %d", art.Frames)
	}
	if src.Reconnects() != 2 {
		t.Fatalf("Expected 2 reconnects, got %d", src.Reconnects())
	}
}

func TestCaptureGivesUpAfterRepeatedFailures(t *testing.T) {
	wr := &writerRecorder{writer: &fakeWriter{}}
	rec, _ := newTestRecorder(t, 1, wr, WithMaxReadRetries(2))
	src := blankSource()
	src.Fail = func(n int) bool { return n >= 5 }

	trigger := cameratest.Blank(64, 48)
	defer trigger.Close()

	art, err := rec.Capture(src, trigger, time.Now(), nil)
	if !errors.Is(err, ErrRecording) {
		t.Fatalf("Expected ErrRecording, got %v", err)
	}
	if !errors.Is(err, cameratest.ErrScripted) {
		t.Fatalf("Expected read cause to be kept, got %v", err)
	}
	if art.Frames != 5 {
		t.Fatalf("Expected 5 frames before giving up, got %d", art.Frames)
	}
	if !strings.Contains(err.Error(), "clip") {
		t.Fatalf("Expected clip stage in error, got %q", err.Error())
	}
}

func TestCaptureReconnectFailureAborts(t *testing.T) {
	wr := &writerRecorder{writer: &fakeWriter{}}
	rec, _ := newTestRecorder(t, 1, wr)
	src := blankSource()
	src.Fail = func(n int) bool { return n == 0 }
	src.ReconnectErr = errors.New("camera gone")

	trigger := cameratest.Blank(64, 48)
	defer trigger.Close()

	if _, err := rec.Capture(src, trigger, time.Now(), nil); !errors.Is(err, ErrRecording) {
		t.Fatalf("Expected ErrRecording, got %v", err)
	}
}

func TestCaptureHandsFramesToObserver(t *testing.T) {
	wr := &writerRecorder{writer: &fakeWriter{}}
	rec, _ := newTestRecorder(t, 1, wr)

	trigger := cameratest.Blank(64, 48)
	defer trigger.Close()

	observed := 0
	_, err := rec.Capture(blankSource(), trigger, time.Now(), func(f camera.Frame) {
		observed++
		f.Close()
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if observed != 10 {
		t.Fatalf("Expected observer to see 10 frames, got %d", observed)
	}
}

func TestToken(t *testing.T) {
	at := time.Date(2024, 12, 31, 23, 59, 58, 0, time.FixedZone("EST", -5*3600))
	if got := Token(at); got != "2025-01-01T04-59-58.000Z" {
		t.Fatalf("Unexpected token %q", got)
	}
}
