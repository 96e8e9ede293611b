package camera

import (
	"errors"
	"fmt"
)

var (
	// ErrReadTimeout is wrapped by a ReadError when the feed stalls.
	ErrReadTimeout = errors.New("frame read timed out")
	// ErrEmptyFrame is wrapped by a ReadError when the capture returns nothing.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrNotConnected is wrapped by a ReadError when no capture is open.
	ErrNotConnected = errors.New("feed not connected")
)

// ConnectionError reports a feed that could not be opened or reopened.
// It is recoverable by retrying the connection.
type ConnectionError struct {
	CameraID string
	Address  string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("camera %s: cannot open %s: %v", e.CameraID, redactAddress(e.Address), e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ReadError reports a single failed frame read.
type ReadError struct {
	CameraID string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("camera %s: read failed: %v", e.CameraID, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is, or wraps, a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsReadError reports whether err is, or wraps, a ReadError.
func IsReadError(err error) bool {
	var re *ReadError
	return errors.As(err, &re)
}
