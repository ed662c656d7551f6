//go:build integration

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizpulse/internal/testutil"
)

func TestRedisStoreWindow(t *testing.T) {
	store := NewRedisStore(testutil.Redis(t))
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "alert:rl:test:a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetNX(ctx, "alert:rl:test:a", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.SetNX(ctx, "alert:rl:test:b", time.Minute)
	require.NoError(t, err)

	n, err := store.Count(ctx, "alert:rl:test:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	time.Sleep(1500 * time.Millisecond)

	exists, err := store.Exists(ctx, "alert:rl:test:a")
	require.NoError(t, err)
	assert.False(t, exists)

	ok, err = store.SetNX(ctx, "alert:rl:test:a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "window reopens after expiry")
}

func TestRedisStoreCanceledContext(t *testing.T) {
	store := NewRedisStore(testutil.Redis(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.SetNX(ctx, "alert:rl:test:c", time.Second)
	assert.Error(t, err)
}
