// Package camera opens video feeds and yields normalized frames.
package camera

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// Camera is the immutable description of one feed, fixed once the capture
// has been opened and its native geometry is known.
type Camera struct {
	ID        string
	Address   string
	Scale     int
	Width     int
	Height    int
	FrameRate int
	Flip      Flip
}

func (c Camera) String() string {
	return fmt.Sprintf("camera %s (%dx%d @ %d fps)", c.ID, c.Width, c.Height, c.FrameRate)
}

// Flip is the mounting orientation correction applied to every frame.
type Flip int

const (
	FlipNone Flip = iota
	FlipHorizontal
	FlipVertical
	FlipBoth
)

// ParseFlip maps the configuration names to a Flip.
func ParseFlip(s string) (Flip, error) {
	switch s {
	case "none":
		return FlipNone, nil
	case "horizontal":
		return FlipHorizontal, nil
	case "vertical":
		return FlipVertical, nil
	case "both", "":
		return FlipBoth, nil
	default:
		return FlipNone, fmt.Errorf("unknown flip mode %q", s)
	}
}

// code returns the OpenCV flip code: 0 around x, 1 around y, -1 around both.
func (f Flip) code() (int, bool) {
	switch f {
	case FlipHorizontal:
		return 1, true
	case FlipVertical:
		return 0, true
	case FlipBoth:
		return -1, true
	default:
		return 0, false
	}
}

// Frame is one acquired image at native resolution. The holder owns Mat and
// must Close it, or hand it on to something that will.
type Frame struct {
	Mat        gocv.Mat
	CapturedAt time.Time
}

// Close releases the frame's pixel buffer.
func (f *Frame) Close() {
	f.Mat.Close()
}

// Source is a connected feed.
//
// Read blocks for at most the source's read timeout. After any Read error
// the caller should Reconnect before reading again. Reconnect is idempotent.
type Source interface {
	Camera() Camera
	Read() (Frame, error)
	Reconnect() error
	Close() error
}
