package domain

import "time"

type CacheEntry[T any] struct {
	Value      T
	CapturedAt time.Time
}

// Fresh reports whether the entry may still be served. Entries without a
// capture time or with a non-positive ttl are never fresh.
func (e CacheEntry[T]) Fresh(now time.Time, ttl time.Duration) bool {
	if e.CapturedAt.IsZero() || ttl <= 0 {
		return false
	}

	return now.Sub(e.CapturedAt) < ttl
}
