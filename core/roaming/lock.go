package roaming

import "time"

// timedMutex is a mutex whose acquisition can be bounded in time.
type timedMutex struct {
	ch chan struct{}
}

func newTimedMutex() *timedMutex {
	return &timedMutex{ch: make(chan struct{}, 1)}
}

func (m *timedMutex) Lock() { m.ch <- struct{}{} }

func (m *timedMutex) Unlock() {
	select {
	case <-m.ch:
	default:
		panic("roaming: unlock of unlocked mutex")
	}
}

func (m *timedMutex) TryLock() bool {
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// TryLockFor waits at most d for the lock. d <= 0 is a single attempt.
func (m *timedMutex) TryLockFor(d time.Duration) bool {
	if d <= 0 {
		return m.TryLock()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case m.ch <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}
