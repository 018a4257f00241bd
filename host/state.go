package host

import (
	"sync/atomic"
)

// State represents the lifecycle state of a Host.
//
// State machine:
//
//	StateCreated → StateRunning        [Run]
//	StateCreated → StateTerminating    [Shutdown before Run]
//	StateRunning → StateTerminating    [quit / ctx cancel / idle-drain]
//	StateTerminating → StateTerminated [shutdown sequence complete]
//
// Transitions use CAS; StateTerminated is stored unconditionally at the end
// of the shutdown sequence and is terminal.
type State uint32

const (
	// StateCreated indicates the host exists but Run has not been called.
	StateCreated State = iota
	// StateRunning indicates the loop is executing ticks.
	StateRunning
	// StateTerminating indicates shutdown has been requested; the current
	// tick is allowed to finish.
	StateTerminating
	// StateTerminated indicates the shutdown sequence has completed.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateRunning:
		return "Running"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// hostState is an atomic State cell.
type hostState struct {
	v atomic.Uint32
}

func (s *hostState) Load() State {
	return State(s.v.Load())
}

func (s *hostState) Store(state State) {
	s.v.Store(uint32(state))
}

func (s *hostState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
