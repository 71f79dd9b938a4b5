package sessions

import (
	"context"
	"sync"
	"time"
)

// sessionLock holds the lock token for one session. The channel carries the
// token while the lock is held; an empty channel means unlocked.
type sessionLock struct {
	ch       chan struct{}
	acquired time.Time
}

// Locker serializes turn processing per session. Only one writer may process
// a turn for a given session at a time; concurrent callers wait up to the
// configured timeout.
//
// Thread Safety:
// Locker is safe for concurrent use.
type Locker struct {
	mu      sync.Mutex
	locks   map[string]*sessionLock
	timeout time.Duration
}

// NewLocker creates a session locker with the given acquire timeout.
func NewLocker(timeout time.Duration) *Locker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	l := &Locker{
		locks:   make(map[string]*sessionLock),
		timeout: timeout,
	}
	go l.cleanupLoop()
	return l
}

// Acquire blocks until the session lock is held, the timeout elapses, or ctx
// is cancelled. It returns a release function that must be called when done.
func (l *Locker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &sessionLock{ch: make(chan struct{}, 1)}
		l.locks[sessionID] = lock
	}
	lock.acquired = time.Now()
	l.mu.Unlock()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case lock.ch <- struct{}{}:
		release := func() { <-lock.ch }
		return release, nil
	case <-timer.C:
		return nil, ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsLocked reports whether the session is currently locked.
func (l *Locker) IsLocked(sessionID string) bool {
	l.mu.Lock()
	lock, ok := l.locks[sessionID]
	l.mu.Unlock()
	if !ok {
		return false
	}
	return len(lock.ch) > 0
}

func (l *Locker) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		l.cleanup()
	}
}

// cleanup removes unlocked entries that have been idle long enough that no
// acquirer can still hold a reference to them.
func (l *Locker) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for id, lock := range l.locks {
		if len(lock.ch) == 0 && lock.acquired.Before(cutoff) {
			delete(l.locks, id)
		}
	}
}
