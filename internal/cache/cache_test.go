package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lootview/wallet-portfolio/internal/adapter"
	"github.com/lootview/wallet-portfolio/internal/domain"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time                          { return c.now }
func (c *testClock) Since(t time.Time) time.Duration        { return c.now.Sub(t) }
func (c *testClock) Unix(sec int64, nsec int64) time.Time   { return time.Unix(sec, nsec) }
func (c *testClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type payload struct {
	Value string `json:"value"`
}

func newTestCache(t *testing.T) (Cache, *testClock, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := adapter.NewRedisClientFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = redisClient.Close() })

	clock := &testClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	return New(redisClient, clock), clock, mr
}

func TestCache_SetGet(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1", payload{Value: "hello"}, time.Hour))

	var out payload
	hit, reason, err := c.Get(ctx, "k1", "v1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, MissNone, reason)
	assert.Equal(t, "hello", out.Value)
}

func TestCache_MissOnAbsentKey(t *testing.T) {
	c, _, _ := newTestCache(t)

	var out payload
	hit, reason, err := c.Get(context.Background(), "nope", "v1", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, MissNotFound, reason)
}

func TestCache_VersionMismatchEvicts(t *testing.T) {
	c, _, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1", payload{Value: "old"}, time.Hour))

	var out payload
	hit, reason, err := c.Get(ctx, "k1", "v2", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, MissVersionMismatch, reason)

	// The stale entry is gone, not just skipped
	assert.False(t, mr.Exists("k1"))
}

func TestCache_ExpiryEvicts(t *testing.T) {
	c, clock, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1", payload{Value: "old"}, time.Hour))

	clock.now = clock.now.Add(time.Hour)

	var out payload
	hit, reason, err := c.Get(ctx, "k1", "v1", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, MissExpired, reason)
	assert.False(t, mr.Exists("k1"))
}

func TestCache_FreshJustBeforeExpiry(t *testing.T) {
	c, clock, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1", payload{Value: "still here"}, time.Hour))

	clock.now = clock.now.Add(time.Hour - time.Second)

	var out payload
	hit, _, err := c.Get(ctx, "k1", "v1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestCache_CorruptEntryEvicts(t *testing.T) {
	c, _, mr := newTestCache(t)

	require.NoError(t, mr.Set("k1", "not json"))

	var out payload
	hit, reason, err := c.Get(context.Background(), "k1", "v1", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, MissCorrupt, reason)
	assert.False(t, mr.Exists("k1"))
}

func TestCache_Remove(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1", payload{Value: "x"}, time.Hour))
	require.NoError(t, c.Remove(ctx, "k1"))

	var out payload
	hit, _, err := c.Get(ctx, "k1", "v1", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	// Removing an absent key is fine
	assert.NoError(t, c.Remove(ctx, "k1"))
}

func TestReconciliationKey(t *testing.T) {
	tokenKey := domain.NewTokenKey(domain.ChainEthereumMainnet, "0xABC0000000000000000000000000000000000abc", "7")
	key := ReconciliationKey("0xDEAD00000000000000000000000000000000BEEF", tokenKey)
	assert.Equal(t, "reconcile:0xdead00000000000000000000000000000000beef:eip155:1:0xabc0000000000000000000000000000000000abc:7", key)
}
