package ports

import (
	"context"

	"github.com/bnema/spin-accounts-cli/internal/domain"
)

// CacheStore persists raw cache entries. Freshness is decided by the caller
// from CapturedAt; stores may evict earlier but never serve a value they
// were not given.
type CacheStore interface {
	Load(ctx context.Context, key string) (domain.CacheEntry[[]byte], bool, error)
	Store(ctx context.Context, key string, entry domain.CacheEntry[[]byte]) error
}

type ResultLedger interface {
	Record(ctx context.Context, run domain.BatchRun) error
	Recent(ctx context.Context, limit int) ([]domain.BatchRun, error)
}
