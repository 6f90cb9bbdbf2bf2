package scheduler

import (
	"sort"
	"sync"
	"time"
)

type manualTimer struct {
	key string
	at  time.Time
	seq uint64
	fn  func()
}

// ManualClock is a Scheduler whose time only moves when Advance is called.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[string]*manualTimer
}

// NewManualClock starts a manual clock at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start, timers: make(map[string]*manualTimer)}
}

// Now returns the simulated time.
func (m *ManualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set jumps the clock without firing timers.
func (m *ManualClock) Set(now time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *ManualClock) Schedule(key string, delay time.Duration, fn func()) {
	if delay < 0 {
		delay = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.timers[key] = &manualTimer{key: key, at: m.now.Add(delay), seq: m.seq, fn: fn}
}

func (m *ManualClock) Cancel(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.timers[key]; !ok {
		return false
	}
	delete(m.timers, key)
	return true
}

func (m *ManualClock) Pending(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[key]
	return ok
}

// Deadline returns when the timer under key fires.
func (m *ManualClock) Deadline(key string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[key]
	if !ok {
		return time.Time{}, false
	}
	return t.at, true
}

// Advance moves time forward by d, firing due timers in deadline order. Each
// callback observes Now() equal to its own deadline and may schedule more timers.
func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		delete(m.timers, next.key)
		if next.at.After(m.now) {
			m.now = next.at
		}
		m.mu.Unlock()
		next.fn()
	}
}

func (m *ManualClock) nextDueLocked(target time.Time) *manualTimer {
	due := make([]*manualTimer, 0, len(m.timers))
	for _, t := range m.timers {
		if !t.at.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}
