package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore_Claim(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	first, err := store.Claim(ctx, "evt_1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := store.Claim(ctx, "evt_1", time.Hour)
	require.NoError(t, err)
	assert.False(t, again, "a redelivered event is not claimed twice")

	other, err := store.Claim(ctx, "evt_2", time.Hour)
	require.NoError(t, err)
	assert.True(t, other)
}

func TestInMemoryIdempotencyStore_Expiry(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ok, err := store.Claim(ctx, "evt_1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = store.Claim(ctx, "evt_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "an expired claim can be taken again")

	now = now.Add(2 * time.Minute)
	store.sweep()
	assert.Equal(t, 0, store.Size())
}

func TestInMemoryIdempotencyStore_Release(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	_, err := store.Claim(ctx, "evt_1", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "evt_1"))

	ok, err := store.Claim(ctx, "evt_1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, store.Release(ctx, "unknown"))
}

func TestInMemoryIdempotencyStore_CloseIsSafeTwice(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
