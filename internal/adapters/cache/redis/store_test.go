package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bnema/spin-accounts-cli/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, newStore(client, time.Minute, zerolog.Nop())
}

func TestStoreRoundTrip(t *testing.T) {
	_, store := setupMiniRedis(t)
	capturedAt := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)

	err := store.Store(context.Background(), "inventory:alice", domain.CacheEntry[[]byte]{
		Value:      []byte(`{"items":[]}`),
		CapturedAt: capturedAt,
	})
	require.NoError(t, err)

	entry, ok, err := store.Load(context.Background(), "inventory:alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"items":[]}`, string(entry.Value))
	assert.True(t, capturedAt.Equal(entry.CapturedAt))
}

func TestStoreLoadMissing(t *testing.T) {
	_, store := setupMiniRedis(t)

	_, ok, err := store.Load(context.Background(), "nothing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreEntriesExpireAfterRetention(t *testing.T) {
	mr, store := setupMiniRedis(t)

	require.NoError(t, store.Store(context.Background(), "profile:bob", domain.CacheEntry[[]byte]{
		Value:      []byte(`1`),
		CapturedAt: time.Now(),
	}))
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"profile:bob"))

	mr.FastForward(2 * time.Minute)

	_, ok, err := store.Load(context.Background(), "profile:bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreDropsUndecodableEntries(t *testing.T) {
	mr, store := setupMiniRedis(t)
	require.NoError(t, mr.Set(keyPrefix+"broken", "not-json"))

	_, ok, err := store.Load(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewStoreFailsWhenRedisUnavailable(t *testing.T) {
	_, err := NewStore(context.Background(), Config{Addr: "127.0.0.1:1"}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis connection failed")
}

func TestHealthCheck(t *testing.T) {
	_, store := setupMiniRedis(t)
	require.NoError(t, store.HealthCheck(context.Background()))
}
