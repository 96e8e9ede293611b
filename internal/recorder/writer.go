package recorder

import (
	"fmt"

	"gocv.io/x/gocv"
)

// ClipWriter receives the frames of one clip.
type ClipWriter interface {
	Write(frame gocv.Mat) error
	Close() error
}

// WriterFactory opens a ClipWriter for a clip file.
type WriterFactory func(path, codec string, fps float64, width, height int) (ClipWriter, error)

// SnapshotWriter writes a single image and reports success.
type SnapshotWriter func(path string, frame gocv.Mat) bool

// NewVideoWriter opens an OpenCV VideoWriter. It is the default WriterFactory.
func NewVideoWriter(path, codec string, fps float64, width, height int) (ClipWriter, error) {
	vw, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, err
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("video writer for %s did not open (codec %s)", path, codec)
	}
	return vw, nil
}
