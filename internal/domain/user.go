package domain

// UserPreferences holds per-user notification settings.
type UserPreferences struct {
	DMNotificationsEnabled bool `json:"dm_notifications_enabled"`
}

// DefaultUserPreferences is what a user without a stored record gets.
func DefaultUserPreferences() UserPreferences {
	return UserPreferences{DMNotificationsEnabled: true}
}
