package lifecycle

import (
	"sync/atomic"
	"time"
)

// CoroutineState is one of {created, running, suspended, completed,
// destroyed, cancelled} (spec §3.1). Transitions are monotonic toward the
// terminal states {completed, destroyed, cancelled}.
type CoroutineState uint32

const (
	Created CoroutineState = iota
	Running
	Suspended
	Completed
	Destroyed
	Cancelled
)

func (s CoroutineState) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Completed:
		return "completed"
	case Destroyed:
		return "destroyed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is one of the terminal states.
func (s CoroutineState) IsTerminal() bool {
	return s == Completed || s == Destroyed || s == Cancelled
}

// StateManager is an atomic per-coroutine state machine with creation and
// completion timestamps, generalized from the teacher's FastState
// (eventloop/state.go) from its 5-state driver machine to the coroutine
// lifecycle's 6 states.
type StateManager struct {
	_          [64]byte
	v          atomic.Uint32
	createdAt  int64 // unix nanos
	completed  atomic.Int64 // unix nanos, 0 until first terminal transition
	_          [40]byte
}

// NewStateManager constructs a StateManager in the Created state, stamping
// the creation time.
func NewStateManager() *StateManager {
	m := &StateManager{createdAt: time.Now().UnixNano()}
	m.v.Store(uint32(Created))
	return m
}

// Load returns the current state.
func (m *StateManager) Load() CoroutineState { return CoroutineState(m.v.Load()) }

// CreatedAt returns the creation timestamp.
func (m *StateManager) CreatedAt() time.Time { return time.Unix(0, m.createdAt) }

// CompletedAt returns the completion timestamp, or the zero Time if the
// coroutine has not yet reached a terminal state.
func (m *StateManager) CompletedAt() time.Time {
	ns := m.completed.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// TryTransition performs a CAS from `from` to `to`, publishing the
// completion timestamp exactly once if `to` is terminal.
func (m *StateManager) TryTransition(from, to CoroutineState) bool {
	if !m.v.CompareAndSwap(uint32(from), uint32(to)) {
		return false
	}
	if to.IsTerminal() {
		m.completed.CompareAndSwap(0, time.Now().UnixNano())
	}
	return true
}

// ForceTransition sets the state unconditionally, publishing the completion
// timestamp exactly once if `to` is terminal. Used for error paths (panic
// recovery, forced cancellation) where the prior state is not known.
func (m *StateManager) ForceTransition(to CoroutineState) {
	m.v.Store(uint32(to))
	if to.IsTerminal() {
		m.completed.CompareAndSwap(0, time.Now().UnixNano())
	}
}
