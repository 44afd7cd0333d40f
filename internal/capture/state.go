package capture

import (
	"fmt"
	"sync"
)

// State is the lifecycle state of a Source
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateCapturing
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateCapturing:
		return "capturing"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText lets states appear by name in JSON status
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// stateMachine guards State transitions. Closed is terminal.
type stateMachine struct {
	mu sync.Mutex
	s  State
}

func (m *stateMachine) get() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s
}

// set moves to s unless the machine is already closed
func (m *stateMachine) set(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s != StateClosed {
		m.s = s
	}
}

// begin enters Capturing from Ready or Error and reports the state it was in
func (m *stateMachine) begin() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.s
	if prev != StateReady && prev != StateError {
		return prev, false
	}
	m.s = StateCapturing
	return prev, true
}

// finish leaves Capturing for Ready or Error depending on err. It does
// nothing if the state changed underneath the capture (close, deselect).
func (m *stateMachine) finish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s != StateCapturing {
		return
	}
	if err != nil {
		m.s = StateError
	} else {
		m.s = StateReady
	}
}
