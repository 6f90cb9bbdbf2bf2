package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/access-ticket-bot/internal/cooldown"
)

// CooldownRepository mirrors cooldown entries so they survive a restart.
type CooldownRepository interface {
	Save(ctx context.Context, entry cooldown.Entry, now time.Time) error
	Delete(ctx context.Context, userID string) error
	LoadAll(ctx context.Context) ([]cooldown.Entry, error)
}

type cooldownRepository struct {
	client *redis.Client
	prefix string
}

// NewCooldownRepository stores entries under "<prefix>:cooldown:<user>".
func NewCooldownRepository(client *redis.Client, prefix string) CooldownRepository {
	if prefix == "" {
		prefix = "ticketbot"
	}
	return &cooldownRepository{client: client, prefix: prefix + ":cooldown:"}
}

// Save writes the expiry with a TTL equal to the time left. Already-expired
// entries are removed instead.
func (r *cooldownRepository) Save(ctx context.Context, entry cooldown.Entry, now time.Time) error {
	ttl := entry.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return r.Delete(ctx, entry.UserID)
	}
	return r.client.Set(ctx, r.prefix+entry.UserID, entry.ExpiresAt.UTC().Format(time.RFC3339Nano), ttl).Err()
}

func (r *cooldownRepository) Delete(ctx context.Context, userID string) error {
	return r.client.Del(ctx, r.prefix+userID).Err()
}

// LoadAll scans every stored entry. Keys that vanish mid-scan are skipped.
func (r *cooldownRepository) LoadAll(ctx context.Context) ([]cooldown.Entry, error) {
	var entries []cooldown.Entry
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		expiresAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", key, err)
		}
		entries = append(entries, cooldown.Entry{
			UserID:    strings.TrimPrefix(key, r.prefix),
			ExpiresAt: expiresAt,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
