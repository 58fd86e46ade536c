package session

import "sync"

// sessionLock is one session's logical mutex, refcounted so the map entry
// can be dropped once nobody holds or is waiting on it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// lockMap guarantees a session never re-enters its own round loop
// concurrently (spec §4.3: "the session never re-enters itself
// concurrently"), without holding one mutex per session forever.
//
// Grounded on the teacher's internal/agent/tool_registry.go
// sessionLock/Runtime.lockSession refcounted-mutex-map pattern.
type lockMap struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

func newLockMap() *lockMap {
	return &lockMap{locks: map[string]*sessionLock{}}
}

// acquire blocks until sessionID's lock is held and returns the release func.
func (m *lockMap) acquire(sessionID string) func() {
	m.mu.Lock()
	lock := m.locks[sessionID]
	if lock == nil {
		lock = &sessionLock{}
		m.locks[sessionID] = lock
	}
	lock.refs++
	m.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		m.mu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(m.locks, sessionID)
		}
		m.mu.Unlock()
	}
}
