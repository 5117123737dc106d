package listings

import (
	"sync"
	"time"

	"github.com/lootview/wallet-portfolio/internal/adapter"
)

// FailureCache remembers tokens whose listing lookups recently failed so the
// pipeline does not hammer a provider that keeps erroring for the same token.
// It is constructed once per application and injected wherever needed; there
// is no package-level instance.
type FailureCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   adapter.Clock
	entries map[string]time.Time
}

// NewFailureCache creates a failure cache with the given entry TTL
func NewFailureCache(ttl time.Duration, clock adapter.Clock) *FailureCache {
	return &FailureCache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]time.Time),
	}
}

// RecordFailure marks a key as recently failed
func (f *FailureCache) RecordFailure(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = f.clock.Now().Add(f.ttl)
}

// RecentlyFailed reports whether a key failed within the TTL. Expired entries
// are removed on access.
func (f *FailureCache) RecentlyFailed(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	expiry, ok := f.entries[key]
	if !ok {
		return false
	}
	if f.clock.Now().After(expiry) {
		delete(f.entries, key)
		return false
	}
	return true
}
