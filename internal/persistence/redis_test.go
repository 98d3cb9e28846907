package persistence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterStore_NilWithoutClient(t *testing.T) {
	var r *Redis
	assert.Nil(t, r.LimiterStore("x:"))
	assert.Nil(t, (&Redis{}).LimiterStore("x:"))
}

func TestLimiterStore_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	store := (&Redis{Client: client}).LimiterStore("test:" + uuid.NewString() + ":")
	t.Cleanup(func() { _ = store.Reset() })

	got, err := store.Get("10.0.0.1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Set("10.0.0.1", []byte("hits"), time.Minute))
	got, err = store.Get("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hits"), got)

	require.NoError(t, store.Delete("10.0.0.1"))
	got, err = store.Get("10.0.0.1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Set("a", []byte("1"), time.Minute))
	require.NoError(t, store.Set("b", []byte("2"), time.Minute))
	require.NoError(t, store.Reset())
	got, err = store.Get("a")
	require.NoError(t, err)
	assert.Nil(t, got)
}
