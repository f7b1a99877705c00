package profile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leonardcser/retro-badge/internal/cache"
	"github.com/leonardcser/retro-badge/internal/keylock"
	"github.com/leonardcser/retro-badge/internal/retro"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeUpstream counts fetches and optionally blocks each one on gate.
type fakeUpstream struct {
	calls  atomic.Int32
	gate   chan struct{}
	err    error
	raw    *retro.RawProfile
	gotCtx atomic.Value
}

func (u *fakeUpstream) FetchProfile(ctx context.Context, username string) (*retro.RawProfile, error) {
	u.calls.Add(1)
	u.gotCtx.Store(ctx)
	if u.gate != nil {
		<-u.gate
	}
	if u.err != nil {
		return nil, u.err
	}
	return u.raw, nil
}

func aliceRaw() *retro.RawProfile {
	return &retro.RawProfile{
		Profile: retro.UserProfile{User: "alice", TotalPoints: 500, LastGameID: 42, RichPresenceMsg: "Exploring"},
		Awards:  retro.UserAwards{MasteryAwardsCount: 3},
		Game:    &retro.GameProgress{Title: "Game X", ConsoleName: "SNES"},
	}
}

func newKV(t *testing.T) cache.KV {
	t.Helper()
	db, err := cache.OpenDB(filepath.Join(t.TempDir(), "cache.bbolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	kv, err := db.Bucket("profiles")
	require.NoError(t, err)
	return kv
}

func newFetcher(t *testing.T, up Upstream, ttl time.Duration) (*Fetcher, *fakeClock, cache.KV) {
	t.Helper()
	kv := newKV(t)
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCache(kv, ttl)
	c.SetClock(clock.Now)
	return NewFetcher(c, up, keylock.New(8)), clock, kv
}

func TestFromRawDefaults(t *testing.T) {
	p := FromRaw("bob", &retro.RawProfile{
		Profile: retro.UserProfile{TotalPoints: 10},
		Game:    &retro.GameProgress{},
	})
	assert.Equal(t, "bob", p.Username)
	assert.Equal(t, Stats{HardcorePoints: 10}, p.Stats)
	require.NotNil(t, p.Activity)
	assert.Equal(t, Activity{Title: "Unknown", Platform: "N/A", RichPresence: "N/A"}, *p.Activity)

	p = FromRaw("bob", &retro.RawProfile{})
	assert.Nil(t, p.Activity)
}

func TestValidUsername(t *testing.T) {
	for _, ok := range []string{"alice", "A_b.c-9", "x"} {
		assert.True(t, ValidUsername(ok), ok)
	}
	for _, bad := range []string{"", "a b", "../etc", "name?u=x", strings.Repeat("a", 65)} {
		assert.False(t, ValidUsername(bad), bad)
	}
}

func TestGetFetchesOnceWithinTTL(t *testing.T) {
	up := &fakeUpstream{raw: aliceRaw()}
	f, clock, _ := newFetcher(t, up, time.Minute)
	ctx := context.Background()

	p, err := f.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(500), p.Stats.HardcorePoints)
	assert.Equal(t, int64(3), p.Stats.MasteryCount)
	require.NotNil(t, p.Activity)
	assert.Equal(t, "Game X", p.Activity.Title)

	clock.Advance(59 * time.Second)
	p2, err := f.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, p, p2)
	assert.EqualValues(t, 1, up.calls.Load())

	clock.Advance(time.Second)
	_, err = f.Get(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, up.calls.Load())

	snap := f.Cache().Stats()
	assert.EqualValues(t, 1, snap.Hits)
	assert.EqualValues(t, 2, snap.Misses)
	assert.EqualValues(t, 2, snap.Writes)
}

func TestGetSingleFlight(t *testing.T) {
	up := &fakeUpstream{raw: aliceRaw(), gate: make(chan struct{})}
	f, _, _ := newFetcher(t, up, time.Minute)

	const k = 20
	var wg sync.WaitGroup
	results := make([]Profile, k)
	errs := make([]error, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.Get(context.Background(), "alice")
		}(i)
	}
	require.Eventually(t, func() bool { return up.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(up.gate)
	wg.Wait()

	assert.EqualValues(t, 1, up.calls.Load())
	assert.EqualValues(t, 1, f.Fetches())
	for i := 0; i < k; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
}

func TestGetSingleFlightSharesFailure(t *testing.T) {
	up := &fakeUpstream{err: retro.ErrApplication, gate: make(chan struct{})}
	f, _, kv := newFetcher(t, up, time.Minute)

	const k = 10
	var wg sync.WaitGroup
	errs := make([]error, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.Get(context.Background(), "ghost")
		}(i)
	}
	require.Eventually(t, func() bool { return up.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(up.gate)
	wg.Wait()

	assert.EqualValues(t, 1, up.calls.Load())
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, err, retro.ErrApplication)
	}
	_, err := kv.Get("ghost")
	assert.ErrorIs(t, err, cache.ErrNotFound)
	assert.EqualValues(t, 1, f.Failures())
}

func TestGetFailureIsNotCached(t *testing.T) {
	up := &fakeUpstream{err: fmt.Errorf("%w: boom", retro.ErrUnavailable)}
	f, _, _ := newFetcher(t, up, time.Minute)

	_, err := f.Get(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	up.err = nil
	up.raw = aliceRaw()
	p, err := f.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(500), p.Stats.HardcorePoints)
	assert.EqualValues(t, 2, up.calls.Load())
}

func TestGetInvalidUsernameSkipsUpstream(t *testing.T) {
	up := &fakeUpstream{raw: aliceRaw()}
	f, _, _ := newFetcher(t, up, time.Minute)

	_, err := f.Get(context.Background(), "bad name")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 0, up.calls.Load())
}

func TestCallerCancellationDoesNotCancelFetch(t *testing.T) {
	up := &fakeUpstream{raw: aliceRaw(), gate: make(chan struct{})}
	f, _, _ := newFetcher(t, up, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.Get(ctx, "alice")
		done <- err
	}()
	require.Eventually(t, func() bool { return up.calls.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(up.gate)
	require.Eventually(t, func() bool {
		_, ok := f.Cache().lookup("alice")
		return ok
	}, time.Second, time.Millisecond)

	upCtx := up.gotCtx.Load().(context.Context)
	assert.NoError(t, upCtx.Err())

	p, err := f.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.EqualValues(t, 1, up.calls.Load())
}

func TestCorruptRecordIsAMiss(t *testing.T) {
	up := &fakeUpstream{raw: aliceRaw()}
	f, clock, kv := newFetcher(t, up, time.Minute)

	require.NoError(t, kv.Put("alice", cache.Entry{Value: []byte("{not json"), StoredAt: clock.Now(), TTL: time.Minute}))

	p, err := f.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(500), p.Stats.HardcorePoints)
	assert.EqualValues(t, 1, up.calls.Load())
	assert.EqualValues(t, 1, f.Cache().Stats().Corrupt)
}

func TestInvalidate(t *testing.T) {
	up := &fakeUpstream{raw: aliceRaw()}
	f, _, _ := newFetcher(t, up, time.Minute)
	ctx := context.Background()

	_, err := f.Get(ctx, "alice")
	require.NoError(t, err)
	_, err = f.Get(ctx, "bob")
	require.NoError(t, err)

	existed, err := f.Cache().Invalidate("alice")
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = f.Cache().Invalidate("alice")
	require.NoError(t, err)
	assert.False(t, existed)

	n, err := f.Cache().InvalidateAll()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.Get(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 3, up.calls.Load())
}

func TestDifferentUsersFetchIndependently(t *testing.T) {
	up := &fakeUpstream{raw: aliceRaw()}
	f, _, _ := newFetcher(t, up, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.Get(context.Background(), fmt.Sprintf("user%d", i))
			assert.False(t, errors.Is(err, ErrNotFound))
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 5, up.calls.Load())
}

func TestRefreshWaitsForHeldLock(t *testing.T) {
	up := &fakeUpstream{raw: aliceRaw()}
	locks := keylock.New(8)
	f := NewFetcher(NewCache(newKV(t), time.Minute), up, locks)

	unlock := locks.Lock("alice")
	done := make(chan error, 1)
	go func() {
		_, err := f.Get(context.Background(), "alice")
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("fetch ran while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}
	assert.EqualValues(t, 0, up.calls.Load())

	unlock()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not resume after unlock")
	}
	assert.EqualValues(t, 1, up.calls.Load())
}

func TestSchemaMismatchIsNotFoundAndKeepsCause(t *testing.T) {
	up := &fakeUpstream{err: fmt.Errorf("%w: %w: API_GetUserProfile.php: bad field", retro.ErrApplication, retro.ErrUnexpectedPayload)}
	f, _, _ := newFetcher(t, up, time.Minute)

	_, err := f.Get(context.Background(), "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, retro.ErrUnexpectedPayload)
	_, ok := f.Cache().lookup("alice")
	assert.False(t, ok)
}
