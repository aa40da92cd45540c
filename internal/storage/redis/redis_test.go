package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis connects to LATCHWAY_TEST_REDIS_URL with a unique key prefix.
func setupTestRedis(t *testing.T) *Storage {
	t.Helper()

	url := os.Getenv("LATCHWAY_TEST_REDIS_URL")
	if url == "" {
		t.Skip("LATCHWAY_TEST_REDIS_URL not set")
	}

	store, err := New(context.Background(), Config{URL: url, KeyPrefix: "latchway-test-" + uuid.NewString()[:8]})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := store.rdb.Keys(ctx, store.prefix+":*").Result()
		if len(keys) > 0 {
			store.rdb.Del(ctx, keys...)
		}
		_ = store.Close()
	})
	return store
}

func TestRedisPinLifecycle(t *testing.T) {
	store := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SetPin(ctx, "free", "B"))

	removed, err := store.ClearPin(ctx, "free", "A")
	require.NoError(t, err)
	assert.False(t, removed)

	state, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B", state.DefaultModels["free"])

	removed, err = store.ClearPin(ctx, "free", "B")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.ClearPin(ctx, "missing", "B")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRedisRecordRequest(t *testing.T) {
	store := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.RecordRequest(ctx, "A", now.Add(-8*24*time.Hour)))
	require.NoError(t, store.RecordRequest(ctx, "B", now))
	require.NoError(t, store.RecordRequest(ctx, "B", now))

	state, err := store.Load(ctx)
	require.NoError(t, err)
	assert.NotContains(t, state.RequestTimestamps, "A")
	assert.Equal(t, []int64{now.Unix(), now.Unix()}, state.RequestTimestamps["B"])
}

func TestKeyHelpers(t *testing.T) {
	store := NewFromClient(nil, "")
	assert.Equal(t, "latchway:default_models", store.pinsKey())
	assert.Equal(t, "latchway:backends", store.backendsKey())
	assert.Equal(t, "latchway:request_timestamps:A", store.timestampsKey("A"))
}
