package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryExpirySemantics(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry()

	assert.False(t, reg.IsBlocked("u1", now))
	_, ok := reg.Remaining("u1", now)
	assert.False(t, ok)

	reg.Set("u1", now.Add(168*time.Hour))
	assert.True(t, reg.IsBlocked("u1", now))
	remaining, ok := reg.Remaining("u1", now.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, 167*time.Hour, remaining)

	// An entry at exactly now is no longer blocking.
	assert.False(t, reg.IsBlocked("u1", now.Add(168*time.Hour)))
	_, stillRecorded := reg.Expiry("u1")
	assert.True(t, stillRecorded)
}

func TestRegistryDeleteAndEntries(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry()
	reg.Set("b", now.Add(2*time.Hour))
	reg.Set("a", now.Add(time.Hour))

	entries := reg.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].UserID)
	assert.Equal(t, "b", entries[1].UserID)

	assert.True(t, reg.Delete("a"))
	assert.False(t, reg.Delete("a"))
	assert.Equal(t, 1, reg.Len())
}
