package services

import "sync"

// SessionLocks serializes mutating operations per session. Squad membership
// and game numbering carry cross-entity invariants that cannot tolerate
// interleaved partial updates; different sessions stay fully independent.
// One instance is shared by every service touching session state.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewSessionLocks() *SessionLocks {
	return &SessionLocks{locks: make(map[int]*sync.Mutex)}
}

// acquire blocks until the session lock is held and returns the release
// function.
func (l *SessionLocks) acquire(sessionID int) func() {
	l.mu.Lock()
	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[sessionID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
