// Package framestream hands the most recent frame of each camera from its
// worker to readers on other goroutines.
package framestream

import (
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// Slot holds the latest published frame of one camera. Publish replaces the
// frame under a lock and readers only ever receive clones, so nobody observes
// a frame that is still being written or mutates one that was published.
type Slot struct {
	mu          sync.Mutex
	frame       gocv.Mat
	hasFrame    bool
	publishedAt time.Time
	closed      bool

	seq atomic.Uint64
}

// Snapshot is a reader's private copy of the published frame.
type Snapshot struct {
	Mat         gocv.Mat
	Seq         uint64
	PublishedAt time.Time
}

func (s *Snapshot) Close() {
	s.Mat.Close()
}

func NewSlot() *Slot {
	return &Slot{}
}

// Publish takes ownership of frame and releases the one it replaces. After
// Close, published frames are released immediately.
func (s *Slot) Publish(frame gocv.Mat, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		frame.Close()
		return
	}
	if s.hasFrame {
		s.frame.Close()
	}
	s.frame = frame
	s.hasFrame = true
	s.publishedAt = at
	s.seq.Add(1)
}

// Snapshot returns a clone of the latest frame, or false if nothing has been
// published yet. The caller owns the returned Mat.
func (s *Slot) Snapshot() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasFrame || s.closed {
		return Snapshot{}, false
	}
	return Snapshot{
		Mat:         s.frame.Clone(),
		Seq:         s.seq.Load(),
		PublishedAt: s.publishedAt,
	}, true
}

// Seq returns the number of frames published so far without locking, so
// readers can skip work when nothing changed.
func (s *Slot) Seq() uint64 {
	return s.seq.Load()
}

// Close releases the held frame.
func (s *Slot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasFrame {
		s.frame.Close()
		s.hasFrame = false
	}
	s.closed = true
}
