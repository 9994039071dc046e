// Package cache is the content-addressed dedup store: it answers
// "have we already summarized this article" and keeps the answer warm
// in memory in front of the database.
package cache

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rpatel/newsbrief/internal/digest"
)

// Store is the persistence the cache sits in front of.
type Store interface {
	CacheEntry(ctx context.Context, fp digest.Fingerprint) (digest.CacheEntry, error)
	StoreCacheEntry(ctx context.Context, entry digest.CacheEntry) error
	EvictCacheEntries(ctx context.Context, olderThan time.Time) (int64, error)
}

const lruSize = 2048

// Cache is safe for use from concurrent pipeline runs. A lookup miss
// is a license to compute; two racing computes both store and the last
// write wins, which is fine because summaries are idempotent to
// overwrite.
type Cache struct {
	store     Store
	retention time.Duration
	now       func() time.Time

	front *lru.Cache[digest.Fingerprint, digest.CacheEntry]
	// Striped so eviction and lookup/store exclude each other per key
	// without one big lock across the whole cache.
	locks [64]sync.Mutex
}

func New(store Store, retention time.Duration) *Cache {
	front, _ := lru.New[digest.Fingerprint, digest.CacheEntry](lruSize)

	return &Cache{
		store:     store,
		retention: retention,
		now:       time.Now,
		front:     front,
	}
}

func (c *Cache) lock(fp digest.Fingerprint) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(fp))
	return &c.locks[h.Sum32()%uint32(len(c.locks))]
}

// Lookup returns the stored entry for fp, or ok=false when it is
// absent or past the retention window.
func (c *Cache) Lookup(ctx context.Context, fp digest.Fingerprint) (digest.CacheEntry, bool, error) {
	mu := c.lock(fp)
	mu.Lock()
	defer mu.Unlock()

	if entry, ok := c.front.Get(fp); ok {
		if c.fresh(entry) {
			return entry, true, nil
		}
		c.front.Remove(fp)
	}

	entry, err := c.store.CacheEntry(ctx, fp)
	if errors.Is(err, digest.ErrNotFound) {
		return digest.CacheEntry{}, false, nil
	}
	if err != nil {
		return digest.CacheEntry{}, false, fmt.Errorf("error looking up cache entry: %w", err)
	}
	if !c.fresh(entry) {
		return digest.CacheEntry{}, false, nil
	}

	c.front.Add(fp, entry)
	return entry, true, nil
}

// Store upserts an entry. Last write with the same fingerprint wins.
func (c *Cache) Store(ctx context.Context, entry digest.CacheEntry) error {
	mu := c.lock(entry.Fingerprint)
	mu.Lock()
	defer mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = c.now().UTC()
	}

	if err := c.store.StoreCacheEntry(ctx, entry); err != nil {
		return fmt.Errorf("error storing cache entry: %w", err)
	}
	c.front.Add(entry.Fingerprint, entry)

	return nil
}

// Evict removes entries older than the retention window.
func (c *Cache) Evict(ctx context.Context) (int64, error) {
	cutoff := c.now().UTC().Add(-c.retention)

	n, err := c.store.EvictCacheEntries(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("error evicting cache entries: %w", err)
	}

	// Drop stale front entries under the same per-key locks lookups
	// take, so an eviction never races a hit on the same fingerprint.
	for _, fp := range c.front.Keys() {
		mu := c.lock(fp)
		mu.Lock()
		if entry, ok := c.front.Peek(fp); ok && !c.fresh(entry) {
			c.front.Remove(fp)
		}
		mu.Unlock()
	}

	return n, nil
}

func (c *Cache) fresh(entry digest.CacheEntry) bool {
	return c.now().UTC().Sub(entry.CreatedAt) <= c.retention
}

// Janitor evicts on an interval until ctx is done.
func (c *Cache) Janitor(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := c.Evict(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "cache eviction failed", "error", err)
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "evicted cache entries", "count", n)
			}
		}
	}
}
