package flowloop

import "sync/atomic"

// State is the Manager's own run state (distinct from an individual
// coroutine's lifecycle state in package lifecycle). It is grounded on the
// teacher's FastState (eventloop/state.go): a pure-CAS atomic state machine,
// cache-line padded to avoid false sharing with neighboring fields.
type State uint64

const (
	// StateAwake: the Manager has been created but Run has not been called.
	StateAwake State = 0
	// StateTerminated: the Manager has fully shut down.
	StateTerminated State = 1
	// StateSleeping: Drive is blocked waiting for the next ready item or timer.
	StateSleeping State = 2
	// StateRunning: Drive is actively processing the ready queue/timers.
	StateRunning State = 3
	// StateTerminating: Shutdown has been requested but has not completed.
	StateTerminating State = 4
)

func (s State) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state machine: pure atomic CAS, no mutex.
type fastState struct {
	_ [64]byte
	v atomic.Uint64
	_ [56]byte
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint64(StateAwake))
	return s
}

func (s *fastState) Load() State { return State(s.v.Load()) }

func (s *fastState) Store(st State) { s.v.Store(uint64(st)) }

func (s *fastState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

func (s *fastState) IsRunning() bool {
	st := s.Load()
	return st == StateRunning || st == StateSleeping
}

func (s *fastState) CanAcceptWork() bool {
	st := s.Load()
	return st == StateAwake || st == StateRunning || st == StateSleeping
}
