package scanner

import (
	"sync"
	"time"

	"scanbridge/internal/domain"
)

// sessionState holds the process-wide scan session flags. Callers only get
// atomic operations; the fields are never exposed.
type sessionState struct {
	mu             sync.Mutex
	active         bool
	paused         bool
	pauseRequested bool
	stopRequested  bool
	camera         string
	startedAt      time.Time

	// wake interrupts idle waits in the poll loop when a signal arrives.
	wake chan struct{}
}

func newSessionState() *sessionState {
	return &sessionState{wake: make(chan struct{}, 1)}
}

// signals is what one poll iteration consumed.
type signals struct {
	pause  bool
	stop   bool
	paused bool
}

// begin marks a session active. It reports false if one already is.
func (s *sessionState) begin(camera string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return false
	}
	s.active = true
	s.paused = false
	s.pauseRequested = false
	s.stopRequested = false
	s.camera = camera
	s.startedAt = now
	return true
}

func (s *sessionState) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.paused = false
	s.pauseRequested = false
	s.stopRequested = false
}

func (s *sessionState) requestPause() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return domain.ErrNoActiveSession
	}
	s.pauseRequested = true
	s.mu.Unlock()
	s.poke()
	return nil
}

func (s *sessionState) requestStop() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return domain.ErrNoActiveSession
	}
	s.stopRequested = true
	s.mu.Unlock()
	s.poke()
	return nil
}

// take reads and clears both request flags in one step.
func (s *sessionState) take() signals {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig := signals{pause: s.pauseRequested, stop: s.stopRequested, paused: s.paused}
	s.pauseRequested = false
	s.stopRequested = false
	return sig
}

// rearmPause restores a consumed pause request that could not be acted on yet.
func (s *sessionState) rearmPause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.pauseRequested = true
	}
}

func (s *sessionState) markPaused() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.paused = true
	}
}

func (s *sessionState) snapshot() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := domain.SessionStatus{Active: s.active, Paused: s.paused}
	if s.active {
		started := s.startedAt
		st.Camera = s.camera
		st.StartedAt = &started
	}
	return st
}

func (s *sessionState) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
