// Package artifact caches rendered badge images together with the content
// hash and modification time needed to answer conditional requests.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/leonardcser/retro-badge/internal/cache"
	"github.com/leonardcser/retro-badge/internal/logger"
	"go.uber.org/zap"
)

// Payload layout: 32 bytes sha256(body) || body
const hashLen = sha256.Size

// Entry is an immutable rendered artifact.
type Entry struct {
	Body         []byte
	ContentHash  string
	LastModified time.Time
	StoredAt     time.Time
	TTL          time.Duration
}

// ETag returns the strong entity tag for the entry.
func (e Entry) ETag() string { return `"` + e.ContentHash + `"` }

func (e Entry) FreshAt(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.StoredAt) < e.TTL
}

type Cache struct {
	kv    cache.KV
	ttl   time.Duration
	now   func() time.Time
	stats cache.Stats
	log   *zap.SugaredLogger
}

func NewCache(kv cache.KV, ttl time.Duration) *Cache {
	return &Cache{kv: kv, ttl: ttl, now: time.Now, log: logger.With("artifact-cache")}
}

// SetClock replaces the time source used for stamping and freshness.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

func (c *Cache) TTL() time.Duration { return c.ttl }

// GetFresh returns the artifact for key if it exists and is within its TTL.
// Missing, expired and unreadable records all read as absent.
func (c *Cache) GetFresh(key string) (Entry, bool) {
	e, ok := c.lookup(key)
	if ok {
		c.stats.Hit()
	} else {
		c.stats.Miss()
	}
	return e, ok
}

// Peek is GetFresh without counting a hit or miss.
func (c *Cache) Peek(key string) (Entry, bool) { return c.lookup(key) }

func (c *Cache) lookup(key string) (Entry, bool) {
	rec, err := c.kv.Get(key)
	if err != nil {
		switch {
		case errors.Is(err, cache.ErrNotFound):
		case errors.Is(err, cache.ErrCorrupt):
			c.stats.Corrupt()
			c.log.Warnw("corrupt artifact record treated as miss", "key", key)
		default:
			c.log.Warnw("artifact cache read failed", "key", key, "error", err)
		}
		return Entry{}, false
	}
	if !rec.FreshAt(c.now()) {
		return Entry{}, false
	}
	if len(rec.Value) < hashLen {
		c.stats.Corrupt()
		c.log.Warnw("short artifact record treated as miss", "key", key, "len", len(rec.Value))
		return Entry{}, false
	}
	return Entry{
		Body:         rec.Value[hashLen:],
		ContentHash:  hex.EncodeToString(rec.Value[:hashLen]),
		LastModified: rec.StoredAt,
		StoredAt:     rec.StoredAt,
		TTL:          rec.TTL,
	}, true
}

// Store hashes body, stamps it with the current time and persists it. On a
// storage error the returned Entry is still usable, it is just not cached.
func (c *Cache) Store(key string, body []byte) (Entry, error) {
	sum := sha256.Sum256(body)
	now := c.now()
	e := Entry{
		Body:         body,
		ContentHash:  hex.EncodeToString(sum[:]),
		LastModified: now,
		StoredAt:     now,
		TTL:          c.ttl,
	}
	payload := make([]byte, 0, hashLen+len(body))
	payload = append(payload, sum[:]...)
	payload = append(payload, body...)
	if err := c.kv.Put(key, cache.Entry{Value: payload, StoredAt: now, TTL: c.ttl}); err != nil {
		return e, fmt.Errorf("store artifact %s: %w", key, err)
	}
	c.stats.Write()
	return e, nil
}

// Invalidate removes the artifact for key and reports whether one existed.
func (c *Cache) Invalidate(key string) (bool, error) {
	return c.kv.Delete(key)
}

// InvalidateAll removes every artifact and returns how many were removed.
func (c *Cache) InvalidateAll() (int, error) {
	return c.kv.Clear()
}

func (c *Cache) Stats() cache.StatsSnapshot { return c.stats.Snapshot() }
