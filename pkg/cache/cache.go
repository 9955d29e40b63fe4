// Package cache is a TTL-keyed result store mapping query fingerprints to
// previously scored result sets. The upstream API bills per call regardless
// of result size, so an identical repeated query inside the TTL window must
// cost zero additional budget.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vidpulse/vidpulse/pkg/model"
	"github.com/vidpulse/vidpulse/pkg/storage"
)

// DefaultTTL is how long a cached result set stays valid. Entries at or
// past the TTL are treated as absent.
const DefaultTTL = 4 * time.Hour

const keyPrefix = "cache:results:"

// ResultCache is a 2-tier cache: L1 in-memory (capacity-bounded, lost on
// restart) and L2 key-value store write-through (survives restarts).
type ResultCache struct {
	store      storage.Store
	ttl        time.Duration
	maxEntries int
	logger     *slog.Logger

	l1  sync.Map // key → *l1Entry
	now func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

type l1Entry struct {
	data      []byte
	writtenAt time.Time
}

type persistedEntry struct {
	Payload   []model.ScoredVideo `json:"payload"`
	WrittenAt time.Time           `json:"written_at"`
}

// New creates a result cache over the given store. ttl <= 0 selects
// DefaultTTL; maxEntries <= 0 disables L1 capacity eviction.
func New(store storage.Store, ttl time.Duration, maxEntries int, logger *slog.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{
		store:      store,
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     logger,
		now:        time.Now,
	}
}

// Get returns the cached payload for key, or false if it was never written,
// has expired, or the stored blob is unreadable.
func (c *ResultCache) Get(ctx context.Context, key string) ([]model.ScoredVideo, bool) {
	now := c.now()

	// L1 check
	if val, ok := c.l1.Load(key); ok {
		entry := val.(*l1Entry)
		if now.Sub(entry.writtenAt) < c.ttl {
			var payload []model.ScoredVideo
			if json.Unmarshal(entry.data, &payload) == nil {
				c.hits.Add(1)
				return payload, true
			}
		}
		c.l1.Delete(key) // expired or corrupt
	}

	// L2 check
	blob, err := c.store.Get(ctx, keyPrefix+key)
	if err == nil {
		var entry persistedEntry
		if json.Unmarshal(blob, &entry) == nil && now.Sub(entry.WrittenAt) < c.ttl {
			if data, marshalErr := json.Marshal(entry.Payload); marshalErr == nil {
				c.l1.Store(key, &l1Entry{data: data, writtenAt: entry.WrittenAt})
			}
			c.hits.Add(1)
			return entry.Payload, true
		}
	}

	c.misses.Add(1)
	return nil, false
}

// Put overwrites the entry for key with a fresh timestamp.
func (c *ResultCache) Put(ctx context.Context, key string, payload []model.ScoredVideo) {
	now := c.now()

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	c.evictIfNeeded(now)
	c.l1.Store(key, &l1Entry{data: data, writtenAt: now})

	blob, err := json.Marshal(persistedEntry{Payload: payload, WrittenAt: now})
	if err != nil {
		return
	}
	if err := c.store.Put(ctx, keyPrefix+key, blob); err != nil {
		c.logger.Debug("cache write-through failed", "key", key, "error", err)
	}
}

// Stats returns the hit/miss counters since construction.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// evictIfNeeded removes L1 entries when the cap is reached: expired
// entries first, then oldest by write time until under the limit.
func (c *ResultCache) evictIfNeeded(now time.Time) {
	if c.maxEntries <= 0 {
		return
	}

	count := 0
	c.l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count < c.maxEntries {
		return
	}

	c.l1.Range(func(key, val any) bool {
		if entry, ok := val.(*l1Entry); ok && now.Sub(entry.writtenAt) >= c.ttl {
			c.l1.Delete(key)
			count--
		}
		return count >= c.maxEntries
	})
	if count < c.maxEntries {
		return
	}

	for count >= c.maxEntries {
		var oldestKey any
		oldestAt := now.Add(time.Hour)
		c.l1.Range(func(key, val any) bool {
			if entry, ok := val.(*l1Entry); ok && entry.writtenAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.writtenAt
			}
			return true
		})
		if oldestKey == nil {
			return
		}
		c.l1.Delete(oldestKey)
		count--
	}
}
