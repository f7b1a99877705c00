package profile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/leonardcser/retro-badge/internal/keylock"
	"github.com/leonardcser/retro-badge/internal/logger"
	"github.com/leonardcser/retro-badge/internal/retro"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned when no Profile can be produced for a username,
// whatever the underlying cause.
var ErrNotFound = errors.New("profile: not found")

// Upstream fetches raw profile data. *retro.Client implements it.
type Upstream interface {
	FetchProfile(ctx context.Context, username string) (*retro.RawProfile, error)
}

type Fetcher struct {
	cache    *Cache
	upstream Upstream
	locks    *keylock.Table
	group    singleflight.Group
	fetches  atomic.Int64
	failures atomic.Int64
	log      *zap.SugaredLogger
}

func NewFetcher(c *Cache, up Upstream, locks *keylock.Table) *Fetcher {
	if locks == nil {
		locks = keylock.New(keylock.DefaultShards)
	}
	return &Fetcher{cache: c, upstream: up, locks: locks, log: logger.With("profile-fetcher")}
}

// Get returns the Profile for username, from cache when fresh. Concurrent
// callers for the same stale username share a single upstream fetch. The
// fetch is detached from ctx: a caller that gives up gets ctx.Err() while
// the fetch completes and fills the cache for the next caller.
func (f *Fetcher) Get(ctx context.Context, username string) (Profile, error) {
	if !ValidUsername(username) {
		return Profile{}, fmt.Errorf("%w: invalid username %q", ErrNotFound, username)
	}
	if raw, ok := f.cache.Get(username); ok {
		return FromRaw(username, raw), nil
	}

	ch := f.group.DoChan(username, func() (any, error) {
		return f.refresh(context.WithoutCancel(ctx), username)
	})
	select {
	case <-ctx.Done():
		return Profile{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Profile{}, res.Err
		}
		return res.Val.(Profile), nil
	}
}

func (f *Fetcher) refresh(ctx context.Context, username string) (Profile, error) {
	unlock, ok := f.locks.TryLock(username)
	if !ok {
		f.log.Debugw("waiting for profile lock", "username", username)
		unlock = f.locks.Lock(username)
	}
	defer unlock()

	// Someone may have refreshed while we waited for the lock.
	if raw, ok := f.cache.lookup(username); ok {
		return FromRaw(username, raw), nil
	}

	f.fetches.Add(1)
	raw, err := f.upstream.FetchProfile(ctx, username)
	if err != nil {
		f.failures.Add(1)
		switch {
		case errors.Is(err, retro.ErrUnexpectedPayload):
			f.log.Warnw("upstream payload does not match the profile schema", "username", username, "error", err)
		case errors.Is(err, retro.ErrApplication):
			f.log.Infow("upstream has no such user", "username", username, "error", err)
		default:
			f.log.Warnw("profile fetch failed", "username", username, "error", err)
		}
		return Profile{}, fmt.Errorf("%w: %s: %w", ErrNotFound, username, err)
	}
	if err := f.cache.Put(username, raw); err != nil {
		f.log.Warnw("profile not cached", "username", username, "error", err)
	}
	return FromRaw(username, raw), nil
}

// Cache exposes the underlying profile cache.
func (f *Fetcher) Cache() *Cache { return f.cache }

// Fetches is the number of upstream fetch sequences started.
func (f *Fetcher) Fetches() int64 { return f.fetches.Load() }

// Failures is the number of upstream fetch sequences that failed.
func (f *Fetcher) Failures() int64 { return f.failures.Load() }
