// Package motion finds movement between consecutive frames of one camera by
// differencing blurred, downscaled grayscale images.
package motion

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/mikeyg42/motionwatch/internal/config"
)

// ErrEmptyFrame is returned when Detect is handed a frame with no pixels.
var ErrEmptyFrame = errors.New("motion: empty frame")

// Event is the largest moving region found in a frame, in native pixels.
type Event struct {
	Region image.Rectangle
	Area   float64
}

// State is the per-camera memory of the detector: the reduced, blurred
// grayscale version of the last frame seen. It belongs to exactly one
// camera loop and is not safe for concurrent use.
type State struct {
	previous gocv.Mat
	primed   bool
}

// NewState returns an empty state. The first Detect call against it only
// seeds the previous frame.
func NewState() *State {
	return &State{previous: gocv.NewMat()}
}

// Reset drops the remembered frame, e.g. after a reconnect.
func (s *State) Reset() {
	s.primed = false
}

func (s *State) Close() {
	s.previous.Close()
	s.primed = false
}

// Detector holds the immutable differencing parameters. A single Detector
// can serve many cameras as long as each has its own State.
type Detector struct {
	scale         int
	blurSize      int
	diffThreshold int
	minimumArea   float64
	boxColor      color.RGBA
	boxThickness  int
}

// NewDetector validates cfg and returns a Detector that works at 1/scale of
// the native resolution.
func NewDetector(cfg config.MotionConfig, scale int) (*Detector, error) {
	if scale < 1 {
		return nil, fmt.Errorf("scale must be at least 1, got %d", scale)
	}
	if cfg.BlurSize < 1 || cfg.BlurSize%2 == 0 {
		return nil, fmt.Errorf("blur size must be a positive odd number, got %d", cfg.BlurSize)
	}
	if cfg.DiffThreshold < 1 || cfg.DiffThreshold > 255 {
		return nil, fmt.Errorf("diff threshold must be within 1..255, got %d", cfg.DiffThreshold)
	}
	if cfg.MinimumArea < 0 {
		return nil, fmt.Errorf("minimum area cannot be negative, got %v", cfg.MinimumArea)
	}

	thickness := cfg.BoxThickness
	if thickness < 1 {
		thickness = 1
	}

	return &Detector{
		scale:         scale,
		blurSize:      cfg.BlurSize,
		diffThreshold: cfg.DiffThreshold,
		minimumArea:   cfg.MinimumArea,
		boxColor:      cfg.BoxRGBA(),
		boxThickness:  thickness,
	}, nil
}

// Detect compares frame with the one remembered in state and reports the
// largest changed region if its area exceeds the minimum. The remembered
// frame is replaced on every call, motion or not. frame is only read.
func (d *Detector) Detect(state *State, frame gocv.Mat) (Event, bool, error) {
	if frame.Empty() {
		return Event{}, false, ErrEmptyFrame
	}

	current := d.prepare(frame)

	if !state.primed || current.Cols() != state.previous.Cols() || current.Rows() != state.previous.Rows() {
		state.previous.Close()
		state.previous = current
		state.primed = true
		return Event{}, false, nil
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(state.previous, current, &diff)

	state.previous.Close()
	state.previous = current

	// Threshold is strict, so cutoff-1 keeps every pixel that reaches cutoff.
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, float32(d.diffThreshold-1), 255, gocv.ThresholdBinary)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	largest := -1
	largestArea := 0.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if largest < 0 || area > largestArea {
			largest = i
			largestArea = area
		}
	}
	if largest < 0 {
		return Event{}, false, nil
	}

	factor := float64(d.scale * d.scale)
	if largestArea <= d.minimumArea/factor {
		return Event{}, false, nil
	}

	r := gocv.BoundingRect(contours.At(largest))
	return Event{
		Region: image.Rect(r.Min.X*d.scale, r.Min.Y*d.scale, r.Max.X*d.scale, r.Max.Y*d.scale),
		Area:   largestArea * factor,
	}, true, nil
}

// prepare returns the reduced, grayscale, blurred version of frame.
func (d *Detector) prepare(frame gocv.Mat) gocv.Mat {
	reduced := gocv.NewMat()
	defer reduced.Close()
	if d.scale > 1 {
		size := image.Pt(frame.Cols()/d.scale, frame.Rows()/d.scale)
		gocv.Resize(frame, &reduced, size, 0, 0, gocv.InterpolationLinear)
	} else {
		frame.CopyTo(&reduced)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if reduced.Channels() > 1 {
		gocv.CvtColor(reduced, &gray, gocv.ColorBGRToGray)
	} else {
		reduced.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Pt(d.blurSize, d.blurSize), 0, 0, gocv.BorderDefault)
	return blurred
}

// Annotate draws the event's bounding box onto frame in place.
func (d *Detector) Annotate(frame *gocv.Mat, ev Event) {
	gocv.Rectangle(frame, ev.Region, d.boxColor, d.boxThickness)
}
