// Package cameratest provides a scripted camera.Source for tests.
package cameratest

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/mikeyg42/motionwatch/internal/camera"
)

// ErrScripted is the cause of reads failed by a Source's Fail hook.
var ErrScripted = errors.New("scripted read failure")

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Source replays frames produced by Frame. Every Read advances Clock, when
// set, by one frame interval so time moves at the camera's frame rate.
type Source struct {
	// Frame returns a new Mat for read number n, counted from zero.
	Frame func(n int) gocv.Mat
	// Fail, when set, fails read n if it returns true.
	Fail func(n int) bool
	// ReconnectErr, when set, is returned by Reconnect.
	ReconnectErr error
	Clock        *Clock

	mu         sync.Mutex
	cam        camera.Camera
	reads      int
	reconnects int
	closed     bool
}

func NewSource(cam camera.Camera, frame func(n int) gocv.Mat) *Source {
	return &Source{cam: cam, Frame: frame}
}

func (s *Source) Camera() camera.Camera { return s.cam }

func (s *Source) Read() (camera.Frame, error) {
	s.mu.Lock()
	n := s.reads
	s.reads++
	s.mu.Unlock()

	var at time.Time
	if s.Clock != nil {
		if s.cam.FrameRate > 0 {
			s.Clock.Advance(time.Second / time.Duration(s.cam.FrameRate))
		}
		at = s.Clock.Now()
	} else {
		at = time.Now()
	}

	if s.Fail != nil && s.Fail(n) {
		return camera.Frame{}, &camera.ReadError{CameraID: s.cam.ID, Err: ErrScripted}
	}
	return camera.Frame{Mat: s.Frame(n), CapturedAt: at}, nil
}

func (s *Source) Reconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return s.ReconnectErr
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Source) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *Source) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Blank returns a black BGR frame.
func Blank(width, height int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8UC3)
}

// WithSquare returns a black BGR frame with a filled white rectangle.
func WithSquare(width, height int, square image.Rectangle) gocv.Mat {
	m := Blank(width, height)
	gocv.Rectangle(&m, square, color.RGBA{R: 255, G: 255, B: 255}, -1)
	return m
}
