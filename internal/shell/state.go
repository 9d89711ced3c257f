package shell

import (
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
)

// Status is how a command finished: an exit code, or the number of the
// signal that terminated it.
type Status struct {
	Code     int
	Signaled bool
}

var (
	statusSuccess = Status{Code: 0}
	statusFailure = Status{Code: 1}
)

func (s Status) String() string {
	if s.Signaled {
		return fmt.Sprintf("terminated by signal %d", s.Code)
	}
	return fmt.Sprintf("exit value %d", s.Code)
}

// waitStatus is satisfied by both syscall.WaitStatus and unix.WaitStatus.
type waitStatus interface {
	Exited() bool
	ExitStatus() int
	Signaled() bool
	Signal() syscall.Signal
}

func statusOf(ws waitStatus) Status {
	switch {
	case ws.Signaled():
		return Status{Code: int(ws.Signal()), Signaled: true}
	case ws.Exited():
		return Status{Code: ws.ExitStatus()}
	default:
		return statusFailure
	}
}

// State is the session-wide mutable state shared by the dispatch loop and the
// signal goroutine.
type State struct {
	foregroundOnly atomic.Bool

	mu   sync.Mutex
	last Status
}

func NewState() *State {
	return &State{last: statusSuccess}
}

func (s *State) ForegroundOnly() bool {
	return s.foregroundOnly.Load()
}

// ToggleForegroundOnly flips foreground-only mode and returns the new value.
func (s *State) ToggleForegroundOnly() bool {
	for {
		old := s.foregroundOnly.Load()
		if s.foregroundOnly.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// EffectiveBackground resolves the background flag a command actually runs
// with. Foreground-only mode overrides any request for the background.
func (s *State) EffectiveBackground(requested bool) bool {
	return requested && !s.ForegroundOnly()
}

func (s *State) LastStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *State) SetLastStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = status
}
