package camera

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/mikeyg42/motionwatch/internal/config"
	"github.com/mikeyg42/motionwatch/internal/logging"
)

// DefaultReadTimeout applies when the camera config leaves read_timeout unset.
const DefaultReadTimeout = 5 * time.Second

// SetRTSPTransport selects tcp or udp for every capture opened afterwards
// through the FFmpeg backend.
func SetRTSPTransport(transport string) error {
	return os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", "rtsp_transport;"+transport)
}

// Capture is a Source backed by an OpenCV VideoCapture. Addresses that parse
// as integers are treated as local device indexes, anything else is handed to
// the FFmpeg backend (RTSP/HTTP URLs, files).
type Capture struct {
	cam         Camera
	readTimeout time.Duration
	logger      *zap.Logger

	open func(address string) (frameReader, error)

	mu sync.Mutex
	vc frameReader
}

// frameReader is the part of gocv.VideoCapture a Capture drives after Open.
type frameReader interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Open connects to the feed described by cfg and reads its native geometry.
// Width, height and frame rate overrides in cfg take precedence over what the
// capture reports; a capture reporting no frame rate gets defaultFPS.
func Open(cfg config.CameraConfig, defaultFPS int, logger *zap.Logger) (*Capture, error) {
	flip, err := ParseFlip(cfg.Flip)
	if err != nil {
		return nil, &ConnectionError{CameraID: cfg.ID, Address: cfg.Address, Err: err}
	}

	vc, err := openCapture(cfg.Address)
	if err != nil {
		return nil, &ConnectionError{CameraID: cfg.ID, Address: cfg.Address, Err: err}
	}

	width, height := cfg.Width, cfg.Height
	if width == 0 || height == 0 {
		width = int(vc.Get(gocv.VideoCaptureFrameWidth))
		height = int(vc.Get(gocv.VideoCaptureFrameHeight))
	}
	if width <= 0 || height <= 0 {
		vc.Close()
		return nil, &ConnectionError{CameraID: cfg.ID, Address: cfg.Address,
			Err: fmt.Errorf("capture reported no frame size")}
	}

	fps := cfg.FrameRate
	if fps == 0 {
		fps = int(vc.Get(gocv.VideoCaptureFPS))
	}
	if fps <= 0 {
		fps = defaultFPS
	}

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	c := &Capture{
		cam: Camera{
			ID:        cfg.ID,
			Address:   cfg.Address,
			Scale:     cfg.Scale,
			Width:     width,
			Height:    height,
			FrameRate: fps,
			Flip:      flip,
		},
		readTimeout: readTimeout,
		logger:      logging.Component(logger, "capture").With(zap.String("camera", cfg.ID)),
		open:        openReader,
		vc:          vc,
	}

	c.logger.Info("Feed opened",
		zap.String("address", redactAddress(cfg.Address)),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("fps", fps))
	return c, nil
}

func openCapture(address string) (*gocv.VideoCapture, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	if idx, convErr := strconv.Atoi(address); convErr == nil {
		vc, err = gocv.VideoCaptureDevice(idx)
	} else {
		vc, err = gocv.VideoCaptureFileWithAPI(address, gocv.VideoCaptureFFmpeg)
	}
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.New("capture is not opened")
	}
	return vc, nil
}

func openReader(address string) (frameReader, error) {
	vc, err := openCapture(address)
	if err != nil {
		return nil, err
	}
	return vc, nil
}

func (c *Capture) Camera() Camera { return c.cam }

// Read grabs the next frame and normalizes it. A read that does not return
// within the read timeout is abandoned: the stuck capture is closed in the
// background once it unblocks, and the caller gets a ReadError.
func (c *Capture) Read() (Frame, error) {
	c.mu.Lock()
	vc := c.vc
	c.mu.Unlock()
	if vc == nil {
		return Frame{}, &ReadError{CameraID: c.cam.ID, Err: ErrNotConnected}
	}

	raw := gocv.NewMat()
	done := make(chan bool, 1)
	go func() { done <- vc.Read(&raw) }()

	timer := time.NewTimer(c.readTimeout)
	defer timer.Stop()

	select {
	case ok := <-done:
		if !ok || raw.Empty() {
			raw.Close()
			return Frame{}, &ReadError{CameraID: c.cam.ID, Err: ErrEmptyFrame}
		}
	case <-timer.C:
		c.mu.Lock()
		if c.vc == vc {
			c.vc = nil
		}
		c.mu.Unlock()
		go func() {
			<-done
			raw.Close()
			vc.Close()
		}()
		return Frame{}, &ReadError{CameraID: c.cam.ID, Err: ErrReadTimeout}
	}

	out := Normalize(raw, c.cam.Width, c.cam.Height, c.cam.Flip)
	raw.Close()
	return Frame{Mat: out, CapturedAt: time.Now()}, nil
}

// Reconnect releases the current capture, if any, and opens a new one.
func (c *Capture) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc != nil {
		c.vc.Close()
		c.vc = nil
	}

	vc, err := c.open(c.cam.Address)
	if err != nil {
		return &ConnectionError{CameraID: c.cam.ID, Address: c.cam.Address, Err: err}
	}
	c.vc = vc
	c.logger.Info("Feed reconnected")
	return nil
}

// Close releases the capture. Safe to call more than once.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return nil
	}
	err := c.vc.Close()
	c.vc = nil
	return err
}

// redactAddress hides credentials embedded in feed URLs before logging.
func redactAddress(address string) string {
	u, err := url.Parse(address)
	if err != nil || u.User == nil {
		return address
	}
	return u.Redacted()
}
