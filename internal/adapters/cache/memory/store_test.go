package memory

import (
	"context"
	"testing"
	"time"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoadAfterStore(t *testing.T) {
	t.Parallel()

	store := NewStore()
	capturedAt := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	value := []byte(`{"stars":5}`)

	require.NoError(t, store.Store(context.Background(), "profile:alice", domain.CacheEntry[[]byte]{Value: value, CapturedAt: capturedAt}))
	value[2] = 'X'

	entry, ok, err := store.Load(context.Background(), "profile:alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"stars":5}`, string(entry.Value))
	assert.Equal(t, capturedAt, entry.CapturedAt)

	_, ok, err = store.Load(context.Background(), "profile:bob")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, store.Len())
}
