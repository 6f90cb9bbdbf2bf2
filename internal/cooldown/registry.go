// Package cooldown holds the per-user cooldown expiry registry. It is plain
// state; the timers that release entries live in the scheduler.
package cooldown

import (
	"sort"
	"sync"
	"time"
)

// Entry is one user's cooldown.
type Entry struct {
	UserID    string
	ExpiresAt time.Time
}

// Registry maps user IDs to absolute cooldown expiry timestamps.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]time.Time)}
}

// Set records (or extends) a user's cooldown expiry.
func (r *Registry) Set(userID string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[userID] = expiresAt
}

// Expiry returns the recorded expiry, expired or not.
func (r *Registry) Expiry(userID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exp, ok := r.entries[userID]
	return exp, ok
}

// IsBlocked reports whether the user has an unexpired entry at now.
func (r *Registry) IsBlocked(userID string, now time.Time) bool {
	_, blocked := r.Remaining(userID, now)
	return blocked
}

// Remaining returns the time left on the user's cooldown. The second result is
// false when there is no entry or it has already expired.
func (r *Registry) Remaining(userID string, now time.Time) (time.Duration, bool) {
	exp, ok := r.Expiry(userID)
	if !ok || !exp.After(now) {
		return 0, false
	}
	return exp.Sub(now), true
}

// Delete removes the entry, reporting whether one existed.
func (r *Registry) Delete(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[userID]; !ok {
		return false
	}
	delete(r.entries, userID)
	return true
}

// Entries returns a snapshot ordered by expiry.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for id, exp := range r.entries {
		out = append(out, Entry{UserID: id, ExpiresAt: exp})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	return out
}

// Len returns the number of recorded entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
