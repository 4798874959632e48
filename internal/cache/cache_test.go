package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(8, time.Minute)

	_, err := store.Get(ctx, "orders:1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	value := []byte(`{"id":"1"}`)
	require.NoError(t, store.Set(ctx, "orders:1", value, 0))
	value[0] = 'X'

	got, err := store.Get(ctx, "orders:1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1"}`, string(got), "stored bytes are copied")

	require.NoError(t, store.Delete(ctx, "orders:1"))
	_, err = store.Get(ctx, "orders:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(2, time.Minute)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, store.Set(ctx, "c", []byte("3"), 0))

	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = store.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestMemoryStoreRejectsEmptyKey(t *testing.T) {
	assert.Error(t, NewMemory(1, time.Minute).Set(context.Background(), "", []byte("x"), 0))
}

func TestNoopStoreAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	store := Noop()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Second))
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
