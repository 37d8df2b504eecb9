// Package redis is a CacheStore shared between processes through Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/ports"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keyPrefix = "sa:cache:"
	// Entries outlive every configured TTL; freshness is decided by the caller.
	defaultRetention = 30 * time.Minute
)

type Config struct {
	Addr      string
	Password  string
	DB        int
	Retention time.Duration
}

type Store struct {
	client    *goredis.Client
	retention time.Duration
	logger    zerolog.Logger
}

var _ ports.CacheStore = (*Store)(nil)

type wireEntry struct {
	Value      []byte    `json:"value"`
	CapturedAt time.Time `json:"captured_at"`
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to redis cache")

	return newStore(client, cfg.Retention, logger), nil
}

func newStore(client *goredis.Client, retention time.Duration, logger zerolog.Logger) *Store {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Store{client: client, retention: retention, logger: logger}
}

func (s *Store) Load(ctx context.Context, key string) (domain.CacheEntry[[]byte], bool, error) {
	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.CacheEntry[[]byte]{}, false, nil
	}
	if err != nil {
		return domain.CacheEntry[[]byte]{}, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var entry wireEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		return domain.CacheEntry[[]byte]{}, false, nil
	}

	return domain.CacheEntry[[]byte]{Value: entry.Value, CapturedAt: entry.CapturedAt}, true, nil
}

func (s *Store) Store(ctx context.Context, key string, entry domain.CacheEntry[[]byte]) error {
	data, err := json.Marshal(wireEntry{Value: entry.Value, CapturedAt: entry.CapturedAt})
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", key, err)
	}

	if err := s.client.Set(ctx, keyPrefix+key, data, s.retention).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}

	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
