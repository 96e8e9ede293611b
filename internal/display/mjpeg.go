package display

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/hybridgroup/mjpeg"
	"gocv.io/x/gocv"
)

const defaultJPEGQuality = 80

// MJPEG serves every camera as a multipart JPEG stream. Streams are created
// up front so handlers can be registered before the first frame arrives.
type MJPEG struct {
	quality int

	mu      sync.RWMutex
	streams map[string]*mjpeg.Stream
}

func NewMJPEG(cameraIDs []string, quality int) *MJPEG {
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}
	m := &MJPEG{quality: quality, streams: make(map[string]*mjpeg.Stream, len(cameraIDs))}
	for _, id := range cameraIDs {
		m.streams[id] = mjpeg.NewStream()
	}
	return m
}

// Handler returns the stream for cameraID, or nil when it is unknown.
func (m *MJPEG) Handler(cameraID string) http.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[cameraID]
	if !ok {
		return nil
	}
	return s
}

func (m *MJPEG) Render(cameraID string, frame gocv.Mat) error {
	m.mu.RLock()
	s, ok := m.streams[cameraID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no stream for camera %s", cameraID)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, []int{gocv.IMWriteJpegQuality, m.quality})
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	// UpdateJPEG keeps the slice, so hand it a copy of the native buffer.
	data := append([]byte(nil), buf.GetBytes()...)
	s.UpdateJPEG(data)
	return nil
}

func (m *MJPEG) Close() error { return nil }
