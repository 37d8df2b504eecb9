package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/spin-accounts-cli/internal/domain"
)

func newTestPool(t *testing.T, cfg PoolConfig, names ...string) (*SessionPool, *fakeDialer, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	dialer := newFakeDialer()
	pool := NewSessionPool(newFakeCredentials(names...), dialer, NewResponseCache(newMemoryCacheStore(), clock), clock, cfg)
	_, err := pool.Load(context.Background())
	require.NoError(t, err)
	return pool, dialer, clock
}

func TestSessionPoolLoadKeepsCredentialOrder(t *testing.T) {
	pool, _, _ := newTestPool(t, DefaultPoolConfig(), "carol", "alice", "bob")
	assert.Equal(t, []string{"carol", "alice", "bob"}, pool.Names())
}

func TestSessionPoolConstructsOncePerAccount(t *testing.T) {
	pool, dialer, _ := newTestPool(t, DefaultPoolConfig(), "alice")

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.GetOrCreate(context.Background(), "alice")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), dialer.dials.Load())
	assert.Equal(t, 1, pool.Live())
}

func TestSessionPoolAppliesPerAccountJitter(t *testing.T) {
	pool, _, clock := newTestPool(t, DefaultPoolConfig(), "alice")

	_, err := pool.GetOrCreate(context.Background(), "alice")
	require.NoError(t, err)

	slept := clock.Slept()
	require.Len(t, slept, 1)
	assert.Equal(t, pool.jitter("alice"), slept[0])
	assert.GreaterOrEqual(t, slept[0], 100*time.Millisecond)
	assert.Less(t, slept[0], 200*time.Millisecond)
}

func TestSessionPoolBoundsConcurrentConstruction(t *testing.T) {
	cfg := DefaultPoolConfig()
	cfg.ConstructLimit = 2
	names := []string{"a", "b", "c", "d", "e", "f"}
	pool, dialer, _ := newTestPool(t, cfg, names...)

	var inFlight, peak atomic.Int32
	for _, name := range names {
		dialer.session(name).connectHook = func() {
			current := inFlight.Add(1)
			for {
				old := peak.Load()
				if current <= old || peak.CompareAndSwap(old, current) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
		}
	}

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.GetOrCreate(context.Background(), name)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, len(names), pool.Live())
}

func TestSessionPoolRetriesStoreLockOnce(t *testing.T) {
	pool, dialer, clock := newTestPool(t, DefaultPoolConfig(), "alice")
	dialer.session("alice").connectErrs = []error{&domain.ConnectError{Kind: domain.ConnectStoreLocked, Message: "database is locked"}}

	_, err := pool.GetOrCreate(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, int32(2), dialer.dials.Load())
	assert.Contains(t, clock.Slept(), pool.lockedRetryDelay("alice"))
}

func TestSessionPoolStoreLockTwiceIsContention(t *testing.T) {
	pool, dialer, _ := newTestPool(t, DefaultPoolConfig(), "alice")
	locked := &domain.ConnectError{Kind: domain.ConnectStoreLocked, Message: "database is locked"}
	dialer.session("alice").connectErrs = []error{locked, locked}

	_, err := pool.GetOrCreate(context.Background(), "alice")
	require.Error(t, err)

	var sessionErr *domain.SessionError
	require.ErrorAs(t, err, &sessionErr)
	assert.Equal(t, domain.SessionStoreContention, sessionErr.Kind)
	assert.Equal(t, domain.KindStoreContention, domain.KindOf(err))
	assert.Equal(t, 0, pool.Live())
}

func TestSessionPoolClassifiesConstructionFailures(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		pool, dialer, _ := newTestPool(t, DefaultPoolConfig(), "alice")
		dialer.session("alice").authorized = false

		_, err := pool.GetOrCreate(context.Background(), "alice")
		var sessionErr *domain.SessionError
		require.ErrorAs(t, err, &sessionErr)
		assert.Equal(t, domain.SessionUnauthenticated, sessionErr.Kind)
		assert.Equal(t, domain.KindCredentialInvalid, domain.KindOf(err))
		assert.Equal(t, 1, dialer.session("alice").disconnects)
	})

	t.Run("missing credential", func(t *testing.T) {
		pool, _, _ := newTestPool(t, DefaultPoolConfig(), "alice")

		_, err := pool.GetOrCreate(context.Background(), "ghost")
		var sessionErr *domain.SessionError
		require.ErrorAs(t, err, &sessionErr)
		assert.Equal(t, domain.SessionCredentialMissing, sessionErr.Kind)
	})

	t.Run("connect timeout", func(t *testing.T) {
		pool, dialer, _ := newTestPool(t, DefaultPoolConfig(), "alice")
		dialer.session("alice").connectErrs = []error{&domain.ConnectError{Kind: domain.ConnectTimeout, Message: "deadline"}}

		_, err := pool.GetOrCreate(context.Background(), "alice")
		require.Error(t, err)
		assert.Equal(t, domain.KindTransientNetwork, domain.KindOf(err))
	})
}

func TestSessionPoolReleaseForcesReconstruction(t *testing.T) {
	pool, dialer, _ := newTestPool(t, DefaultPoolConfig(), "alice")
	ctx := context.Background()

	_, err := pool.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	pool.Release(ctx, "alice")
	pool.Release(ctx, "alice")

	assert.Equal(t, 1, dialer.session("alice").disconnects)
	assert.Equal(t, 0, pool.Live())

	_, err = pool.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int32(2), dialer.dials.Load())
}

func TestSessionPoolCloseAll(t *testing.T) {
	pool, dialer, _ := newTestPool(t, DefaultPoolConfig(), "alice", "bob")
	ctx := context.Background()

	for _, name := range pool.Names() {
		_, err := pool.GetOrCreate(ctx, name)
		require.NoError(t, err)
	}
	pool.CloseAll(ctx)

	assert.Equal(t, 0, pool.Live())
	assert.Equal(t, 1, dialer.session("alice").disconnects)
	assert.Equal(t, 1, dialer.session("bob").disconnects)
}

func TestSessionPoolValidateAllCountsAndCaches(t *testing.T) {
	pool, dialer, _ := newTestPool(t, DefaultPoolConfig(), "alice", "bob", "carol")
	dialer.session("bob").authorized = false
	ctx := context.Background()

	valid, invalid := pool.ValidateAll(ctx, true)
	assert.Equal(t, 2, valid)
	assert.Equal(t, 1, invalid)
	dials := dialer.dials.Load()

	dialer.session("bob").authorized = true
	valid, invalid = pool.ValidateAll(ctx, true)
	assert.Equal(t, 2, valid, "cached answers are reused")
	assert.Equal(t, 1, invalid)
	assert.Equal(t, dials, dialer.dials.Load())

	valid, invalid = pool.ValidateAll(ctx, false)
	assert.Equal(t, 3, valid)
	assert.Equal(t, 0, invalid)
}

func TestSessionPoolValidateDoesNotCacheTransientFailures(t *testing.T) {
	pool, dialer, _ := newTestPool(t, DefaultPoolConfig(), "alice")
	dialer.session("alice").connectErrs = []error{&domain.ConnectError{Kind: domain.ConnectTimeout, Message: "deadline"}}
	ctx := context.Background()

	assert.False(t, pool.Validate(ctx, "alice", true))
	assert.True(t, pool.Validate(ctx, "alice", true), "a timeout is not remembered as an invalid credential")
	assert.Equal(t, 2, dialer.session("alice").connects)
}
