package service

import (
	"context"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
)

// Executor runs closures on the goroutine that owns ticket state.
// worker.EventLoop is the production implementation.
type Executor interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// RewardCatalog is the reward key to link store.
type RewardCatalog interface {
	All() []domain.RewardEntry
	Get(key string) (domain.RewardEntry, bool)
	Set(entry domain.RewardEntry) error
	Delete(key string) (bool, error)
}

// PreferenceStore holds per-user preferences.
type PreferenceStore interface {
	Get(userID string) domain.UserPreferences
	Set(userID string, prefs domain.UserPreferences) error
}

// Flags are the two global switches an owner can flip at runtime.
type Flags struct {
	CreationEnabled        bool `json:"creation_enabled"`
	OperationalHoursBypass bool `json:"operational_hours_bypass"`
}
