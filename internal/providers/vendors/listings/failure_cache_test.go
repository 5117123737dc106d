package listings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time                          { return c.now }
func (c *testClock) Since(t time.Time) time.Duration        { return c.now.Sub(t) }
func (c *testClock) Unix(sec int64, nsec int64) time.Time   { return time.Unix(sec, nsec) }
func (c *testClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func TestFailureCache(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	cache := NewFailureCache(10*time.Minute, clock)

	assert.False(t, cache.RecentlyFailed("0xabc:7"))

	cache.RecordFailure("0xabc:7")
	assert.True(t, cache.RecentlyFailed("0xabc:7"))
	assert.False(t, cache.RecentlyFailed("0xabc:8"))

	// Still inside the TTL
	clock.now = clock.now.Add(10 * time.Minute)
	assert.True(t, cache.RecentlyFailed("0xabc:7"))

	// Past the TTL the entry is forgotten
	clock.now = clock.now.Add(time.Second)
	assert.False(t, cache.RecentlyFailed("0xabc:7"))
	assert.False(t, cache.RecentlyFailed("0xabc:7"))
}

func TestFailureCache_ReFailureResetsTTL(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	cache := NewFailureCache(10*time.Minute, clock)

	cache.RecordFailure("0xabc:7")
	clock.now = clock.now.Add(9 * time.Minute)
	cache.RecordFailure("0xabc:7")

	clock.now = clock.now.Add(9 * time.Minute)
	assert.True(t, cache.RecentlyFailed("0xabc:7"))
}
