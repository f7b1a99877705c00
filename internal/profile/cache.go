package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leonardcser/retro-badge/internal/cache"
	"github.com/leonardcser/retro-badge/internal/logger"
	"github.com/leonardcser/retro-badge/internal/retro"
	"go.uber.org/zap"
)

// Cache stores raw upstream payloads keyed by username. It does not
// coordinate refreshes; Fetcher does that under the per-user lock.
type Cache struct {
	kv    cache.KV
	ttl   time.Duration
	now   func() time.Time
	stats cache.Stats
	log   *zap.SugaredLogger
}

func NewCache(kv cache.KV, ttl time.Duration) *Cache {
	return &Cache{kv: kv, ttl: ttl, now: time.Now, log: logger.With("profile-cache")}
}

// SetClock replaces the time source used for stamping and freshness.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the cached payload if it is still fresh.
func (c *Cache) Get(username string) (*retro.RawProfile, bool) {
	raw, ok := c.read(username, true)
	if ok {
		c.stats.Hit()
	} else {
		c.stats.Miss()
	}
	return raw, ok
}

// lookup is Get without touching the counters.
func (c *Cache) lookup(username string) (*retro.RawProfile, bool) {
	return c.read(username, false)
}

func (c *Cache) read(username string, record bool) (*retro.RawProfile, bool) {
	e, err := c.kv.Get(username)
	if err != nil {
		switch {
		case errors.Is(err, cache.ErrNotFound):
		case errors.Is(err, cache.ErrCorrupt):
			if record {
				c.stats.Corrupt()
				c.log.Warnw("corrupt profile record treated as miss", "username", username)
			}
		default:
			c.log.Warnw("profile cache read failed", "username", username, "error", err)
		}
		return nil, false
	}
	if !e.FreshAt(c.now()) {
		return nil, false
	}
	var raw retro.RawProfile
	if err := json.Unmarshal(e.Value, &raw); err != nil {
		if record {
			c.stats.Corrupt()
		}
		c.log.Warnw("undecodable profile record treated as miss", "username", username, "error", err)
		return nil, false
	}
	return &raw, true
}

func (c *Cache) Put(username string, raw *retro.RawProfile) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", username, err)
	}
	if err := c.kv.Put(username, cache.Entry{Value: b, StoredAt: c.now(), TTL: c.ttl}); err != nil {
		return fmt.Errorf("store profile %s: %w", username, err)
	}
	c.stats.Write()
	return nil
}

// Invalidate removes the record for username and reports whether one existed.
func (c *Cache) Invalidate(username string) (bool, error) {
	return c.kv.Delete(username)
}

// InvalidateAll removes every record and returns how many were removed.
func (c *Cache) InvalidateAll() (int, error) {
	return c.kv.Clear()
}

func (c *Cache) Stats() cache.StatsSnapshot { return c.stats.Snapshot() }
