package rates

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the validity window of a fetched snapshot.
const DefaultTTL = 24 * time.Hour

// Cache is the process-wide read-through snapshot cache. Reads always see
// a complete snapshot; refreshes are last-write-wins, and concurrent
// callers share a single in-flight fetch instead of issuing duplicates.
type Cache struct {
	provider Provider
	ttl      time.Duration
	now      func() time.Time
	group    singleflight.Group

	mu   sync.RWMutex
	snap Snapshot
}

// NewCache creates a cache over the given provider using the wall clock.
func NewCache(provider Provider, ttl time.Duration) *Cache {
	return NewCacheWithClock(provider, ttl, time.Now)
}

// NewCacheWithClock creates a cache with an explicit clock, letting tests
// drive expiry deterministically.
func NewCacheWithClock(provider Provider, ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		provider: provider,
		ttl:      ttl,
		now:      now,
		snap:     IdentitySnapshot(),
	}
}

// Snapshot returns the current rate table, refreshing through the
// provider when expired. A failed refresh serves the previous snapshot
// rather than failing the caller.
func (c *Cache) Snapshot(ctx context.Context) Snapshot {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	if snap.ValidAt(c.now()) {
		return snap
	}

	v, _, _ := c.group.Do("refresh", func() (interface{}, error) {
		// Another caller may have completed the refresh while this one
		// waited on the flight.
		c.mu.RLock()
		current := c.snap
		c.mu.RUnlock()
		if current.ValidAt(c.now()) {
			return current, nil
		}
		refreshed, err := c.fetch(ctx)
		if err != nil {
			slog.WarnContext(ctx, "Rate refresh failed, serving previous snapshot",
				"error", err,
				"fetched_at", current.FetchedAt,
				"currencies", len(current.Rates))
			return current, nil
		}
		return refreshed, nil
	})
	return v.(Snapshot)
}

// Refresh forces a fetch regardless of expiry. Used by the rates worker
// to keep the table warm ahead of TTL.
func (c *Cache) Refresh(ctx context.Context) (Snapshot, error) {
	return c.fetch(ctx)
}

func (c *Cache) fetch(ctx context.Context) (Snapshot, error) {
	table, err := c.provider.Fetch(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	now := c.now()
	snap := Snapshot{
		Rates:     table,
		FetchedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	slog.DebugContext(ctx, "Exchange rates refreshed",
		"currencies", len(snap.Rates),
		"expires_at", snap.ExpiresAt)
	return snap, nil
}
