package meade

import "sync"

// Store holds the mount's last known state and snapshot and broadcasts
// changes. Broadcast channels are closed and replaced under the lock, so a
// receiver holds a channel that is closed exactly once and re-fetches it
// after each wakeup.
type Store struct {
	mu         sync.Mutex
	state      State
	snap       *Snapshot
	forceStop  bool
	completion chan struct{}
	updates    chan struct{}
}

func NewStore() *Store {
	return &Store{
		state:      Disabled,
		completion: make(chan struct{}),
		updates:    make(chan struct{}),
	}
}

// Publish records a fresh snapshot. Leaving the Slewing state raises the
// completion broadcast so pointing waiters can re-check.
func (s *Store) Publish(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = snap.State
	s.snap = snap
	if prev == Slewing && snap.State != Slewing {
		s.raiseCompletion()
	}
	s.raiseUpdate()
}

// SetState records a state with no snapshot, for Disabled and Initializing
// where the handset cannot be polled.
func (s *Store) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = state
	s.snap = nil
	if prev == Slewing && state != Slewing {
		s.raiseCompletion()
	}
	s.raiseUpdate()
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the current state and the last snapshot, which is nil
// when Disabled or Initializing.
func (s *Store) Snapshot() (State, *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.snap
}

// SetForceStop flags an operator stop. Raising it wakes pointing waiters so
// in-flight slews fail immediately.
func (s *Store) SetForceStop(stopped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceStop = stopped
	if stopped {
		s.raiseCompletion()
	}
}

func (s *Store) ForceStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forceStop
}

// Completion returns a channel closed at the next slew completion or force
// stop. Fetch it before checking conditions to avoid missing a wakeup.
func (s *Store) Completion() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completion
}

// Updates returns a channel closed at the next published change.
func (s *Store) Updates() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *Store) raiseCompletion() {
	close(s.completion)
	s.completion = make(chan struct{})
}

func (s *Store) raiseUpdate() {
	close(s.updates)
	s.updates = make(chan struct{})
}
