package model

import "sync"

// RWLock is a reader/writer lock whose acquisitions return their own release function, so that
// callers can write
//
//	defer m.lock.Write()()
//
// and be sure the lock is released on every exit path.
type RWLock struct {
	mu sync.RWMutex
}

// Read takes shared access and returns the matching release.
func (l *RWLock) Read() func() {
	l.mu.RLock()
	return l.mu.RUnlock
}

// Write takes exclusive access and returns the matching release.
func (l *RWLock) Write() func() {
	l.mu.Lock()
	return l.mu.Unlock
}
