package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_GetMiss(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStore_SetGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))

	mr.FastForward(61 * time.Second)

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStore_Delete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, store.Delete(ctx, "k"))

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Deleting an absent key is not an error.
	assert.NoError(t, store.Delete(ctx, "k"))
}

func TestRedisStore_DeletePrefix(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "feed:u1:20:0", []byte("a"), time.Minute))
	require.NoError(t, store.Set(ctx, "feed:u1:20:20", []byte("b"), time.Minute))
	require.NoError(t, store.Set(ctx, "feed:u2:20:0", []byte("c"), time.Minute))
	require.NoError(t, store.Set(ctx, "followees:u1", []byte("d"), time.Minute))

	require.NoError(t, store.DeletePrefix(ctx, "feed:u1:"))

	_, err := store.Get(ctx, "feed:u1:20:0")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = store.Get(ctx, "feed:u1:20:20")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Other users' pages and other key families survive.
	got, err := store.Get(ctx, "feed:u2:20:0")
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), got)
	_, err = store.Get(ctx, "followees:u1")
	assert.NoError(t, err)
}

func TestRedisStore_DeletePrefixManyKeys(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// More keys than one SCAN batch.
	for i := 0; i < 250; i++ {
		require.NoError(t, store.Set(ctx, "feed:u1:20:"+string(rune('a'+i%26))+string(rune('a'+i/26)), []byte("x"), time.Minute))
	}

	require.NoError(t, store.DeletePrefix(ctx, "feed:u1:"))

	keys, err := store.client.Keys(ctx, "feed:u1:*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)
}
