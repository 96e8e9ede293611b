package recorder

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// TokenLayout names every artifact of one event. It is UTC, sorts
// lexically, and avoids characters that are awkward in file names.
const TokenLayout = "2006-01-02T15-04-05.000Z"

// ErrRecording is matched by every error the recorder returns.
var ErrRecording = errors.New("recording failed")

// Artifact describes the files written for one triggered event. ClipPath is
// empty when the configured duration is zero.
type Artifact struct {
	CameraID     string
	Token        string
	SnapshotPath string
	ClipPath     string
	Frames       int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Token formats the event time into the shared artifact token.
func Token(at time.Time) string {
	return at.UTC().Format(TokenLayout)
}

// SnapshotPath returns where the snapshot of an event is written.
func SnapshotPath(dir, cameraID, token string) string {
	return filepath.Join(dir, fmt.Sprintf("motion_picture_%s_%s.jpg", cameraID, token))
}

// ClipPath returns where the clip of an event is written.
func ClipPath(dir, cameraID, token string) string {
	return filepath.Join(dir, fmt.Sprintf("motion_video_%s_%s.mp4", cameraID, token))
}

// Error reports which step of a capture failed.
type Error struct {
	CameraID string
	Stage    string
	Path     string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("camera %s: %s %s failed", e.CameraID, e.Stage, e.Path)
	}
	return fmt.Sprintf("camera %s: %s %s failed: %v", e.CameraID, e.Stage, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrRecording }
