package motion

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"

	"github.com/mikeyg42/motionwatch/internal/config"
)

func testConfig() config.MotionConfig {
	return config.MotionConfig{
		BlurSize:      3,
		DiffThreshold: 100,
		MinimumArea:   1000,
		BoxColor:      [3]int{0, 255, 0},
		BoxThickness:  2,
	}
}

func blankFrame(t *testing.T, width, height int) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return m
}

func squareFrame(t *testing.T, width, height int, square image.Rectangle) gocv.Mat {
	t.Helper()
	m := blankFrame(t, width, height)
	gocv.Rectangle(&m, square, color.RGBA{R: 255, G: 255, B: 255}, -1)
	return m
}

func newTestDetector(t *testing.T, cfg config.MotionConfig, scale int) *Detector {
	t.Helper()
	d, err := NewDetector(cfg, scale)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}
	return d
}

func TestFirstFrameOnlySeeds(t *testing.T) {
	d := newTestDetector(t, testConfig(), 2)
	state := NewState()
	defer state.Close()

	_, found, err := d.Detect(state, squareFrame(t, 640, 480, image.Rect(100, 100, 150, 150)))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if found {
		t.Fatal("Expected no event on the first frame")
	}
}

func TestIdenticalFramesHaveNoMotion(t *testing.T) {
	d := newTestDetector(t, testConfig(), 2)
	state := NewState()
	defer state.Close()

	frame := squareFrame(t, 640, 480, image.Rect(100, 100, 150, 150))
	for i := 0; i < 5; i++ {
		_, found, err := d.Detect(state, frame)
		if err != nil {
			t.Fatalf("Detect failed on frame %d: %v", i, err)
		}
		if found {
			t.Fatalf("Expected no event for identical frame %d", i)
		}
	}
}

func TestSquareAppearing(t *testing.T) {
	square := image.Rect(100, 100, 150, 150)
	d := newTestDetector(t, testConfig(), 2)
	state := NewState()
	defer state.Close()

	if _, _, err := d.Detect(state, blankFrame(t, 640, 480)); err != nil {
		t.Fatalf("Failed to seed detector: %v", err)
	}

	ev, found, err := d.Detect(state, squareFrame(t, 640, 480, square))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !found {
		t.Fatal("Expected motion event")
	}

	const tolerance = 2
	if abs(ev.Region.Min.X-square.Min.X) > tolerance || abs(ev.Region.Min.Y-square.Min.Y) > tolerance ||
		abs(ev.Region.Max.X-square.Max.X) > tolerance || abs(ev.Region.Max.Y-square.Max.Y) > tolerance {
		t.Fatalf("Expected region near %v, got %v", square, ev.Region)
	}
	if ev.Area <= testConfig().MinimumArea {
		t.Fatalf("Expected area above minimum, got %v", ev.Area)
	}
}

func TestMinimumAreaIsStrict(t *testing.T) {
	// The square reduces to a 25x25 blob whose contour encloses 24*24 reduced
	// pixels, i.e. 2304 native pixels at scale 2.
	tests := []struct {
		name        string
		minimumArea float64
		want        bool
	}{
		{"well below", 1000, true},
		{"just below", 2300, true},
		{"equal", 2304, false},
		{"above", 5000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MinimumArea = tt.minimumArea
			d := newTestDetector(t, cfg, 2)
			state := NewState()
			defer state.Close()

			d.Detect(state, blankFrame(t, 640, 480))
			_, found, err := d.Detect(state, squareFrame(t, 640, 480, image.Rect(100, 100, 150, 150)))
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if found != tt.want {
				t.Fatalf("Expected found=%v with minimum area %v", tt.want, tt.minimumArea)
			}
		})
	}
}

func TestPreviousFrameIsAlwaysReplaced(t *testing.T) {
	d := newTestDetector(t, testConfig(), 2)
	state := NewState()
	defer state.Close()

	square := squareFrame(t, 640, 480, image.Rect(100, 100, 150, 150))
	d.Detect(state, blankFrame(t, 640, 480))
	if _, found, _ := d.Detect(state, square); !found {
		t.Fatal("Expected motion when the square appears")
	}
	if _, found, _ := d.Detect(state, square); found {
		t.Fatal("Expected no motion once the square is stationary")
	}
}

func TestSizeChangeReseeds(t *testing.T) {
	d := newTestDetector(t, testConfig(), 2)
	state := NewState()
	defer state.Close()

	d.Detect(state, blankFrame(t, 640, 480))
	_, found, err := d.Detect(state, squareFrame(t, 320, 240, image.Rect(10, 10, 100, 100)))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if found {
		t.Fatal("Expected a size change to reseed instead of reporting motion")
	}
}

func TestGrayscaleInput(t *testing.T) {
	d := newTestDetector(t, testConfig(), 1)
	state := NewState()
	defer state.Close()

	prev := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 160, gocv.MatTypeCV8U)
	defer prev.Close()
	next := prev.Clone()
	defer next.Close()
	gocv.Rectangle(&next, image.Rect(40, 40, 100, 100), color.RGBA{R: 255, G: 255, B: 255}, -1)

	d.Detect(state, prev)
	if _, found, err := d.Detect(state, next); err != nil || !found {
		t.Fatalf("Expected motion on grayscale input, found=%v err=%v", found, err)
	}
}

func TestEmptyFrame(t *testing.T) {
	d := newTestDetector(t, testConfig(), 2)
	state := NewState()
	defer state.Close()

	empty := gocv.NewMat()
	defer empty.Close()
	if _, _, err := d.Detect(state, empty); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("Expected ErrEmptyFrame, got %v", err)
	}
}

func TestNewDetectorValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.MotionConfig)
		scale  int
	}{
		{"even blur", func(c *config.MotionConfig) { c.BlurSize = 4 }, 2},
		{"zero blur", func(c *config.MotionConfig) { c.BlurSize = 0 }, 2},
		{"zero threshold", func(c *config.MotionConfig) { c.DiffThreshold = 0 }, 2},
		{"threshold too high", func(c *config.MotionConfig) { c.DiffThreshold = 256 }, 2},
		{"negative area", func(c *config.MotionConfig) { c.MinimumArea = -1 }, 2},
		{"zero scale", func(c *config.MotionConfig) {}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := NewDetector(cfg, tt.scale); err == nil {
				t.Fatal("Expected validation error")
			}
		})
	}
}

func TestAnnotateDrawsBox(t *testing.T) {
	d := newTestDetector(t, testConfig(), 2)
	frame := blankFrame(t, 640, 480)

	d.Annotate(&frame, Event{Region: image.Rect(100, 100, 150, 150)})

	// gocv stores BGR, so green lands in channel 1.
	px := frame.GetVecbAt(100, 100)
	if px[1] != 255 || px[0] != 0 || px[2] != 0 {
		t.Fatalf("Expected green box corner, got %v", px)
	}
	if center := frame.GetVecbAt(125, 125); center[1] != 0 {
		t.Fatalf("Expected box interior untouched, got %v", center)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
