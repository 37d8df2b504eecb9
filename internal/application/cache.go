package application

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/log"
	"github.com/bnema/spin-accounts-cli/internal/metrics"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

// Cache data classes.
const (
	cacheClassProfile   = "profile"
	cacheClassBalance   = "balance"
	cacheClassInventory = "inventory"
	cacheClassValidity  = "validity"
)

// ResponseCache serves recent remote responses. An entry older than the ttl
// passed by the caller is never served; there is no invalidation, callers
// bypass the cache instead.
type ResponseCache struct {
	store ports.CacheStore
	clock ports.Clock
}

func NewResponseCache(store ports.CacheStore, clock ports.Clock) *ResponseCache {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &ResponseCache{store: store, clock: clock}
}

func (c *ResponseCache) Get(ctx context.Context, key string, ttl time.Duration) ([]byte, bool) {
	if c == nil || c.store == nil || ttl <= 0 {
		return nil, false
	}

	entry, ok, err := c.store.Load(ctx, key)
	if err != nil {
		logger := log.FromContext(ctx, "cache")
		logger.Debug().Err(err).Str("key", key).Msg("cache load failed")
		return nil, false
	}
	if !ok || !entry.Fresh(c.clock.Now(), ttl) {
		return nil, false
	}

	return entry.Value, true
}

func (c *ResponseCache) Put(ctx context.Context, key string, value []byte) {
	if c == nil || c.store == nil {
		return
	}

	entry := domain.CacheEntry[[]byte]{Value: value, CapturedAt: c.clock.Now()}
	if err := c.store.Store(ctx, key, entry); err != nil {
		logger := log.FromContext(ctx, "cache")
		logger.Debug().Err(err).Str("key", key).Msg("cache store failed")
	}
}

func getCached[T any](ctx context.Context, c *ResponseCache, class, key string, ttl time.Duration) (T, bool) {
	var zero T

	raw, ok := c.Get(ctx, key, ttl)
	if !ok {
		metrics.RecordCacheLookup(class, false)
		return zero, false
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		metrics.RecordCacheLookup(class, false)
		return zero, false
	}

	metrics.RecordCacheLookup(class, true)
	return value, true
}

func putCached[T any](ctx context.Context, c *ResponseCache, key string, value T) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.Put(ctx, key, raw)
}

func cacheKey(class, account string, parts ...string) string {
	return strings.Join(append([]string{class, account}, parts...), ":")
}
