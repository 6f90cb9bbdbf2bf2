package store

import (
	"sync"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
)

// PreferenceStore keeps per-user preferences keyed by user ID.
type PreferenceStore struct {
	path  string
	mu    sync.RWMutex
	prefs map[string]domain.UserPreferences
}

// OpenPreferences loads path; a missing file starts empty.
func OpenPreferences(path string) (*PreferenceStore, error) {
	prefs := make(map[string]domain.UserPreferences)
	found, err := readJSON(path, &prefs)
	if err != nil {
		return nil, err
	}
	if !found {
		if err := writeJSONAtomic(path, prefs); err != nil {
			return nil, err
		}
	}
	if prefs == nil {
		prefs = make(map[string]domain.UserPreferences)
	}
	return &PreferenceStore{path: path, prefs: prefs}, nil
}

// Get returns the user's preferences, or the defaults.
func (s *PreferenceStore) Get(userID string) domain.UserPreferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.prefs[userID]; ok {
		return p
	}
	return domain.DefaultUserPreferences()
}

// Set stores the user's preferences.
func (s *PreferenceStore) Set(userID string, prefs domain.UserPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]domain.UserPreferences, len(s.prefs)+1)
	for k, v := range s.prefs {
		next[k] = v
	}
	next[userID] = prefs
	if err := writeJSONAtomic(s.path, next); err != nil {
		return err
	}
	s.prefs = next
	return nil
}
