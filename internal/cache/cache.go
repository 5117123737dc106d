// Package cache implements the versioned reconciliation cache. Entries carry
// a schema version and an explicit expiry; a version mismatch and an expired
// entry are both treated as a clean miss, with the stale key evicted silently
// so callers never branch on why an entry was unusable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lootview/wallet-portfolio/internal/adapter"
	"github.com/lootview/wallet-portfolio/internal/domain"
)

// MissReason records why a lookup produced no usable entry, for logging only.
// Callers must treat every miss identically.
type MissReason string

const (
	MissNone            MissReason = ""
	MissNotFound        MissReason = "not_found"
	MissVersionMismatch MissReason = "version_mismatch"
	MissExpired         MissReason = "expired"
	MissCorrupt         MissReason = "corrupt"
)

// entry is the stored envelope around a cached payload
type entry struct {
	SchemaVersion string          `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
	CachedAt      time.Time       `json:"cached_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// Cache is a versioned TTL cache for reconciliation results
//
//go:generate mockgen -source=cache.go -destination=../mocks/cache.go -package=mocks -mock_names=Cache=MockCache
type Cache interface {
	// Get loads the entry at key into out. A missing key, a schema version
	// other than expectedVersion, an expired entry and an undecodable entry
	// all return hit=false with a nil error; stale entries are evicted on the
	// way out.
	Get(ctx context.Context, key, expectedVersion string, out any) (bool, MissReason, error)

	// Set stores value at key under the given schema version and TTL
	Set(ctx context.Context, key, schemaVersion string, value any, ttl time.Duration) error

	// Remove deletes the entry at key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

type redisCache struct {
	redis adapter.RedisClient
	clock adapter.Clock
}

// New creates a Redis-backed cache
func New(redis adapter.RedisClient, clock adapter.Clock) Cache {
	return &redisCache{redis: redis, clock: clock}
}

// ReconciliationKey builds the cache key for a (wallet, token) reconciliation
func ReconciliationKey(walletAddress string, tokenKey domain.TokenKey) string {
	return fmt.Sprintf("reconcile:%s:%s", domain.NormalizeAddress(walletAddress), strings.ToLower(tokenKey.String()))
}

// Get loads the entry at key into out
func (c *redisCache) Get(ctx context.Context, key, expectedVersion string, out any) (bool, MissReason, error) {
	raw, err := c.redis.Get(ctx, key)
	if err != nil {
		if adapter.IsNil(err) {
			return false, MissNotFound, nil
		}
		return false, MissNone, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}

	var envelope entry
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		c.evict(ctx, key)
		return false, MissCorrupt, nil
	}

	if envelope.SchemaVersion != expectedVersion {
		c.evict(ctx, key)
		return false, MissVersionMismatch, nil
	}

	if !c.clock.Now().Before(envelope.ExpiresAt) {
		c.evict(ctx, key)
		return false, MissExpired, nil
	}

	if err := json.Unmarshal(envelope.Payload, out); err != nil {
		c.evict(ctx, key)
		return false, MissCorrupt, nil
	}

	return true, MissNone, nil
}

// Set stores value at key under the given schema version and TTL
func (c *redisCache) Set(ctx context.Context, key, schemaVersion string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache payload: %w", err)
	}

	now := c.clock.Now().UTC()
	envelope := entry{
		SchemaVersion: schemaVersion,
		Payload:       payload,
		CachedAt:      now,
		ExpiresAt:     now.Add(ttl),
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	// Redis enforces the same TTL so stale envelopes cannot pile up even when
	// they are never read again
	return c.redis.Set(ctx, key, string(raw), ttl)
}

// Remove deletes the entry at key
func (c *redisCache) Remove(ctx context.Context, key string) error {
	return c.redis.Del(ctx, key)
}

func (c *redisCache) evict(ctx context.Context, key string) {
	// Eviction is best-effort; a failed delete just leaves the stale entry to
	// expire via the Redis TTL
	_ = c.redis.Del(ctx, key)
}
