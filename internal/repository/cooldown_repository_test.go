package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/access-ticket-bot/internal/cooldown"
)

func redisForTest(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestCooldownRepositoryRoundTrip(t *testing.T) {
	client := redisForTest(t)
	ctx := context.Background()
	repo := NewCooldownRepository(client, "test-"+uuid.NewString())

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.Save(ctx, cooldown.Entry{UserID: "u1", ExpiresAt: now.Add(time.Hour)}, now))
	require.NoError(t, repo.Save(ctx, cooldown.Entry{UserID: "u2", ExpiresAt: now.Add(-time.Hour)}, now))

	entries, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].UserID)
	assert.True(t, entries[0].ExpiresAt.Equal(now.Add(time.Hour)))

	require.NoError(t, repo.Delete(ctx, "u1"))
	entries, err = repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
