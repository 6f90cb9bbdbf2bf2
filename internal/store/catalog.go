package store

import (
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
)

const defaultSecondStepURL = "https://verification2-djde.onrender.com"

// DefaultCatalog seeds a fresh catalog file.
func DefaultCatalog() []domain.RewardEntry {
	return []domain.RewardEntry{
		{Key: "spotify", Link: "https://link-target.net/1438550/4r4pWdwOV2gK"},
		{Key: "youtube", Link: "https://example.com/youtube-download"},
		{Key: "kinemaster", Link: "https://link-center.net/1438550/dP4XtgqcsuU1"},
		{Key: "hotstar", Link: "https://final-link.com/hotstar-premium", TwoStage: true, SecondStepLink: defaultSecondStepURL},
		{Key: "vpn", Link: "https://final-link.com/vpn-premium", TwoStage: true, SecondStepLink: defaultSecondStepURL},
		{Key: "truecaller", Link: "https://link-target.net/1438550/kvu1lPW7ZsKu"},
		{Key: "bilibili", Link: "https://final-link.com/bilibili-premium", TwoStage: true, SecondStepLink: defaultSecondStepURL},
		{Key: "castle", Link: "https://final-link.com/castle-premium"},
	}
}

// CatalogStore is the ordered reward catalog. An empty path keeps it in memory.
type CatalogStore struct {
	path    string
	logger  *zap.Logger
	mu      sync.RWMutex
	entries []domain.RewardEntry
}

// OpenCatalog loads path, seeding it with DefaultCatalog when missing.
func OpenCatalog(path string, logger *zap.Logger) (*CatalogStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CatalogStore{path: path, logger: logger}

	var entries []domain.RewardEntry
	found, err := readJSON(path, &entries)
	if err != nil {
		return nil, err
	}
	if !found {
		entries = DefaultCatalog()
		if err := writeJSONAtomic(path, entries); err != nil {
			return nil, err
		}
		if path != "" {
			logger.Warn("catalog file missing, seeded defaults", zap.String("path", path), zap.Int("entries", len(entries)))
		}
	}
	for i := range entries {
		entries[i].Key = domain.NormalizeRewardKey(entries[i].Key)
	}
	s.entries = entries
	return s, nil
}

// NewMemoryCatalog returns an unpersisted catalog holding entries.
func NewMemoryCatalog(entries []domain.RewardEntry) *CatalogStore {
	cp := make([]domain.RewardEntry, len(entries))
	copy(cp, entries)
	for i := range cp {
		cp[i].Key = domain.NormalizeRewardKey(cp[i].Key)
	}
	return &CatalogStore{logger: zap.NewNop(), entries: cp}
}

// All returns the entries in insertion order.
func (s *CatalogStore) All() []domain.RewardEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RewardEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get looks an entry up by key, case-insensitively.
func (s *CatalogStore) Get(key string) (domain.RewardEntry, bool) {
	key = domain.NormalizeRewardKey(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Key == key {
			return e, true
		}
	}
	return domain.RewardEntry{}, false
}

// Set updates an existing entry in place or appends a new one.
func (s *CatalogStore) Set(entry domain.RewardEntry) error {
	entry.Key = domain.NormalizeRewardKey(entry.Key)
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]domain.RewardEntry, len(s.entries), len(s.entries)+1)
	copy(next, s.entries)
	replaced := false
	for i := range next {
		if next[i].Key == entry.Key {
			next[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		next = append(next, entry)
	}
	if err := writeJSONAtomic(s.path, next); err != nil {
		return err
	}
	s.entries = next
	return nil
}

// Delete removes key, reporting whether it existed.
func (s *CatalogStore) Delete(key string) (bool, error) {
	key = domain.NormalizeRewardKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]domain.RewardEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Key != key {
			next = append(next, e)
		}
	}
	if len(next) == len(s.entries) {
		return false, nil
	}
	if err := writeJSONAtomic(s.path, next); err != nil {
		return false, err
	}
	s.entries = next
	return true, nil
}
