package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/spin-accounts-cli/internal/ports"
)

func TestResponseCacheServesOnlyFreshEntries(t *testing.T) {
	clock := newFakeClock()
	cache := NewResponseCache(newMemoryCacheStore(), clock)
	ctx := context.Background()

	cache.Put(ctx, "profile:alice", []byte(`{"UserID":"1"}`))

	value, ok := cache.Get(ctx, "profile:alice", 10*time.Second)
	require.True(t, ok)
	assert.JSONEq(t, `{"UserID":"1"}`, string(value))

	clock.Advance(10 * time.Second)
	_, ok = cache.Get(ctx, "profile:alice", 10*time.Second)
	assert.False(t, ok, "entry at exactly ttl is stale")

	_, ok = cache.Get(ctx, "profile:bob", 10*time.Second)
	assert.False(t, ok)
}

func TestResponseCacheZeroTTLAndNilStore(t *testing.T) {
	ctx := context.Background()

	cache := NewResponseCache(newMemoryCacheStore(), newFakeClock())
	cache.Put(ctx, "k", []byte("1"))
	_, ok := cache.Get(ctx, "k", 0)
	assert.False(t, ok)

	var nilCache *ResponseCache
	nilCache.Put(ctx, "k", []byte("1"))
	_, ok = nilCache.Get(ctx, "k", time.Minute)
	assert.False(t, ok)

	noStore := NewResponseCache(nil, nil)
	noStore.Put(ctx, "k", []byte("1"))
	_, ok = noStore.Get(ctx, "k", time.Minute)
	assert.False(t, ok)
}

func TestGameClientProfileCacheRefetchesAfterTTL(t *testing.T) {
	clock := newFakeClock()
	game := newFakeGame()
	cache := NewResponseCache(newMemoryCacheStore(), clock)
	client := NewGameClient("alice", "init", game, nil, cache, newFakeClock(), testSettings())
	ctx := context.Background()

	profile, err := client.Me(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "4242", profile.UserID)
	assert.Equal(t, int64(500), profile.StarsBalance)
	assert.Equal(t, int64(40), profile.Balance)
	assert.False(t, profile.OnCooldown())

	_, err = client.Me(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, game.Calls(ports.OperationMe), "fresh entry is served from cache")

	_, err = client.Me(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, game.Calls(ports.OperationMe), "useCache=false bypasses the cache")

	clock.Advance(11 * time.Second)
	_, err = client.Me(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 3, game.Calls(ports.OperationMe), "stale entry is refetched")
}

func TestGameClientCachesOnlyFirstInventoryPage(t *testing.T) {
	game := newFakeGame()
	game.inventory = []invFixture{credit(1, "5 Stars"), credit(2, "7 Stars"), credit(3, "9 Stars")}
	settings := testSettings()
	settings.InventoryPageSize = 2
	client := NewGameClient("alice", "init", game, nil, NewResponseCache(newMemoryCacheStore(), newFakeClock()), newFakeClock(), settings)
	ctx := context.Background()

	items, err := client.FullInventory(ctx, true)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, 2, game.Calls(ports.OperationInventory))

	items, err = client.FullInventory(ctx, true)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, 3, game.Calls(ports.OperationInventory), "only the second page is fetched again")
	assert.Equal(t, int64(7), items[1].Reward.CreditValue())
}

func TestCacheKeyJoinsParts(t *testing.T) {
	assert.Equal(t, "inventory:alice:50", cacheKey(cacheClassInventory, "alice", "50"))
	assert.Equal(t, "profile:alice", cacheKey(cacheClassProfile, "alice"))
}
