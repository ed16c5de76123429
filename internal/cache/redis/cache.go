package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const anonKeyPrefix = "anon:"

// Cache is the fast-path anonymous-id -> lead-id index, backed by Redis.
// It is advisory only: entries expire, the instance can be down, and
// every consumer has a store-backed fallback. Nothing here is ever
// treated as authoritative for merge decisions.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis. TTL bounds how long a mapping is served without
// a store round-trip; eviction is expected and harmless.
func New(addr, password string, db int, ttl time.Duration) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	slog.Info("[Cache] Redis client configured", "addr", addr, "ttl", ttl)
	return &Cache{client: client, ttl: ttl}
}

// GetLead looks up the cached lead id for an anonymous visitor.
// Returns ok=false on a miss. Errors mean the cache is unreachable;
// callers degrade to the store.
func (c *Cache) GetLead(ctx context.Context, anonymousID string) (int64, bool, error) {
	val, err := c.client.Get(ctx, anonKeyPrefix+anonymousID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cache get failed: %w", err)
	}

	leadID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// A corrupt entry is as good as a miss; the store will heal it.
		slog.Warn("[Cache] Discarding unparseable mapping", "anonymous_id", anonymousID, "value", val)
		return 0, false, nil
	}
	return leadID, true, nil
}

// SetLead writes the anonymous-id -> lead-id mapping with the bounded TTL.
func (c *Cache) SetLead(ctx context.Context, anonymousID string, leadID int64) error {
	key := anonKeyPrefix + anonymousID
	if err := c.client.Set(ctx, key, strconv.FormatInt(leadID, 10), c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// Ping reports cache reachability for the health endpoint.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client's connections.
func (c *Cache) Close() error {
	return c.client.Close()
}
