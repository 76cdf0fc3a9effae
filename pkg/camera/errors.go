package camera

import (
	"errors"
	"fmt"
)

// Sentinel errors for capture failures.
var (
	// ErrNoDeviceFound is returned when no rear-facing camera exists.
	ErrNoDeviceFound = errors.New("camera: no rear-facing device found")

	// ErrAccessDenied is returned on permission or security failures.
	// The caller must obtain access and open a new session.
	ErrAccessDenied = errors.New("camera: access denied")

	// ErrConfigurationFailed is returned when the driver rejects the
	// capture pipeline.
	ErrConfigurationFailed = errors.New("camera: configuration failed")

	// ErrDeviceDisconnected is returned when the device goes away while open.
	ErrDeviceDisconnected = errors.New("camera: device disconnected")

	// ErrFrameDecodeSkipped marks a delivered frame that could not be
	// decoded. It is never surfaced to callers.
	ErrFrameDecodeSkipped = errors.New("camera: frame decode skipped")

	// ErrAlreadyOpened is returned when Open is called twice on a session.
	ErrAlreadyOpened = errors.New("camera: session already opened")

	// ErrClosed is returned by operations on a closed service or reader.
	ErrClosed = errors.New("camera: closed")
)

// SessionError wraps a fatal capture error with session context.
type SessionError struct {
	SessionID string
	State     State
	Err       error
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	return fmt.Sprintf("camera [%s] %s: %v", shortID(e.SessionID), e.State, e.Err)
}

// Unwrap returns the underlying error.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err ends a session. Decode skips are not fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrFrameDecodeSkipped)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
