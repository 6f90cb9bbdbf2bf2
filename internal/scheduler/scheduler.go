// Package scheduler provides the clock and the keyed delayed-execution
// primitive used for inactivity, role-expiry and cooldown-release timers.
package scheduler

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Scheduler runs functions after a delay. Timers are keyed; scheduling under a
// key that already has a pending timer cancels the older one.
type Scheduler interface {
	Clock
	Schedule(key string, delay time.Duration, fn func())
	Cancel(key string) bool
	Pending(key string) bool
}

type timerEntry struct {
	seq   uint64
	timer *time.Timer
}

// Timers is the wall-clock Scheduler backed by time.AfterFunc.
type Timers struct {
	mu     sync.Mutex
	seq    uint64
	timers map[string]*timerEntry
}

// NewTimers creates a wall-clock scheduler.
func NewTimers() *Timers {
	return &Timers{timers: make(map[string]*timerEntry)}
}

// Now returns the current UTC time.
func (t *Timers) Now() time.Time {
	return time.Now().UTC()
}

// Schedule arms fn to run after delay under key.
func (t *Timers) Schedule(key string, delay time.Duration, fn func()) {
	if delay < 0 {
		delay = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.timers[key]; ok {
		prev.timer.Stop()
	}
	t.seq++
	seq := t.seq
	entry := &timerEntry{seq: seq}
	entry.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		cur, ok := t.timers[key]
		if !ok || cur.seq != seq {
			t.mu.Unlock()
			return
		}
		delete(t.timers, key)
		t.mu.Unlock()
		fn()
	})
	t.timers[key] = entry
}

// Cancel stops the pending timer under key, reporting whether one existed.
func (t *Timers) Cancel(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.timers[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(t.timers, key)
	return true
}

// Pending reports whether a timer is armed under key.
func (t *Timers) Pending(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[key]
	return ok
}

// Stop cancels every pending timer.
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, entry := range t.timers {
		entry.timer.Stop()
		delete(t.timers, key)
	}
}
