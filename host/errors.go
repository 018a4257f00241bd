package host

import (
	"errors"
)

// Standard errors.
var (
	// ErrHostRunning is returned when Run is called on a host that is
	// already running.
	ErrHostRunning = errors.New("apphost: host is already running")

	// ErrHostTerminated is returned when operations are attempted on a
	// terminated host.
	ErrHostTerminated = errors.New("apphost: host has been terminated")

	// ErrReentrantRun is returned when Run is called from the loop thread.
	ErrReentrantRun = errors.New("apphost: cannot call Run from within the loop")

	// ErrTimerNotFound is returned when clearing an unknown or already
	// invalidated timer id.
	ErrTimerNotFound = errors.New("apphost: timer not found")

	// ErrHandleReleased is returned on a second release of the same handle.
	// Double-release is a programming defect; the error exists so tests can
	// catch it.
	ErrHandleReleased = errors.New("apphost: handle already released")

	// ErrNoScript is returned by ReloadScript when no script has been
	// loaded.
	ErrNoScript = errors.New("apphost: no script loaded")
)
