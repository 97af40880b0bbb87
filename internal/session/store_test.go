package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	record := Record{UserID: "alice", Role: "viewer"}
	require.NoError(t, store.Save(ctx, "hash-1", record, time.Now().Add(time.Hour)))

	loaded, err := store.Lookup(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", loaded.UserID)
	assert.Equal(t, "viewer", loaded.Role)
	assert.False(t, loaded.CreatedAt.IsZero())
}

func TestRedisStoreMissingSession(t *testing.T) {
	store, _ := newRedisTestStore(t)

	_, err := store.Lookup(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newRedisTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "hash-1", Record{UserID: "alice"}, time.Now().Add(time.Minute)))
	mr.FastForward(2 * time.Minute)

	_, err := store.Lookup(ctx, "hash-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreRejectsExpiredSave(t *testing.T) {
	store, _ := newRedisTestStore(t)

	err := store.Save(context.Background(), "hash-1", Record{UserID: "alice"}, time.Now().Add(-time.Minute))
	assert.Error(t, err)
}

func TestRedisStoreRevoke(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "hash-1", Record{UserID: "alice"}, time.Now().Add(time.Hour)))
	require.NoError(t, store.Revoke(ctx, "hash-1"))

	_, err := store.Lookup(ctx, "hash-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "hash-1", Record{UserID: "alice", Role: "admin"}, time.Now().Add(time.Hour)))

	loaded, err := store.Lookup(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", loaded.UserID)
	assert.Equal(t, "admin", loaded.Role)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "hash-1", Record{UserID: "alice"}, time.Now().Add(-time.Second)))

	_, err := store.Lookup(ctx, "hash-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRevoke(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "hash-1", Record{UserID: "alice"}, time.Now().Add(time.Hour)))
	require.NoError(t, store.Revoke(ctx, "hash-1"))

	_, err := store.Lookup(ctx, "hash-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
