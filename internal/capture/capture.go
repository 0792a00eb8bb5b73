package capture

import (
	"context"
	"errors"

	"kinescope/internal/framepool"
)

// ErrPermissionDenied indicates screen-capture permission is missing or was
// revoked. Not retryable.
var ErrPermissionDenied = errors.New("screen capture permission denied")

// EventKind classifies capture environment notifications.
type EventKind string

const (
	EventDisplayAdded      EventKind = "display_added"
	EventDisplayRemoved    EventKind = "display_removed"
	EventSystemSleep       EventKind = "system_sleep"
	EventSystemWake        EventKind = "system_wake"
	EventScreenLocked      EventKind = "screen_locked"
	EventScreenUnlocked    EventKind = "screen_unlocked"
	EventStreamInterrupted EventKind = "stream_interrupted"
	EventPermissionRevoked EventKind = "permission_revoked"
)

// Event is a capture environment notification.
type Event struct {
	Kind      EventKind
	DisplayID int
	Detail    string
}

// Source supplies raw frames and environment events. Implementations wrap a
// platform capture backend; the recorder treats this as a pull/event source
// only and never writes through it.
type Source interface {
	// NextFrame blocks until the next frame is available or ctx ends.
	NextFrame(ctx context.Context) (framepool.Frame, error)
	// Events delivers configuration-change and interruption notifications.
	Events() <-chan Event
	// Displays reports the current number of attached displays.
	Displays() int
	// CheckPermission verifies screen-capture permission is granted.
	CheckPermission() error
	// Close releases capture resources.
	Close() error
}
