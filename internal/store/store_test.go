package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
)

func TestOpenCatalogSeedsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "apps.json")

	cat, err := OpenCatalog(path, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), cat.All())
	_, err = os.Stat(path)
	require.NoError(t, err)

	vpn, ok := cat.Get("VPN")
	require.True(t, ok)
	assert.True(t, vpn.TwoStage)
	assert.NotEmpty(t, vpn.SecondStepLink)
}

func TestCatalogSetDeletePersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.json")
	cat, err := OpenCatalog(path, nil)
	require.NoError(t, err)

	require.NoError(t, cat.Set(domain.RewardEntry{Key: " Netflix ", Link: "https://n"}))
	require.NoError(t, cat.Set(domain.RewardEntry{Key: "spotify", Link: "https://s2"}))
	removed, err := cat.Delete("castle")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = cat.Delete("castle")
	require.NoError(t, err)
	assert.False(t, removed)

	reopened, err := OpenCatalog(path, nil)
	require.NoError(t, err)
	all := reopened.All()
	assert.Equal(t, "spotify", all[0].Key)
	assert.Equal(t, "https://s2", all[0].Link)
	assert.Equal(t, "netflix", all[len(all)-1].Key)
	_, ok := reopened.Get("castle")
	assert.False(t, ok)
}

func TestPreferencesDefaultAndPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	prefs, err := OpenPreferences(path)
	require.NoError(t, err)
	assert.True(t, prefs.Get("u1").DMNotificationsEnabled)

	require.NoError(t, prefs.Set("u1", domain.UserPreferences{DMNotificationsEnabled: false}))

	reopened, err := OpenPreferences(path)
	require.NoError(t, err)
	assert.False(t, reopened.Get("u1").DMNotificationsEnabled)
	assert.True(t, reopened.Get("u2").DMNotificationsEnabled)
}
