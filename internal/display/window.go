package display

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// Window shows each camera in its own OpenCV highgui window. It must be used
// from the goroutine that created it.
type Window struct {
	windows map[string]*gocv.Window
	order   []string
}

func NewWindow() *Window {
	return &Window{windows: make(map[string]*gocv.Window)}
}

func (w *Window) Render(cameraID string, frame gocv.Mat) error {
	win, ok := w.windows[cameraID]
	if !ok {
		win = gocv.NewWindow(fmt.Sprintf("Camera %s", cameraID))
		w.windows[cameraID] = win
		w.order = append(w.order, cameraID)
	}
	if frame.Empty() {
		return fmt.Errorf("empty frame for camera %s", cameraID)
	}
	win.IMShow(frame)
	return nil
}

// PollKey pumps the highgui event loop. Without an open window there is
// nothing to read keys from, so it only waits.
func (w *Window) PollKey(wait time.Duration) int {
	ms := int(wait / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	if len(w.order) == 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return -1
	}
	return w.windows[w.order[0]].WaitKey(ms)
}

func (w *Window) Close() error {
	for _, id := range w.order {
		if err := w.windows[id].Close(); err != nil {
			return err
		}
	}
	w.windows = map[string]*gocv.Window{}
	w.order = nil
	return nil
}
