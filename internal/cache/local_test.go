package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalCache_SetGet(t *testing.T) {
	c := NewLocalCache(time.Minute, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	_, err = c.Get(ctx, "missing")
	assert.Error(t, err)
}

func TestLocalCache_ValueCoercion(t *testing.T) {
	c := NewLocalCache(time.Minute, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "bytes", []byte("raw"), 0))
	got, err := c.Get(ctx, "bytes")
	require.NoError(t, err)
	assert.Equal(t, "raw", got)

	require.NoError(t, c.Set(ctx, "struct", map[string]int{"n": 1}, 0))
	got, err = c.Get(ctx, "struct")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, got)
}

func TestLocalCache_Expiration(t *testing.T) {
	c := NewLocalCache(time.Minute, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 20*time.Millisecond))
	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	_, err = c.Get(ctx, "k")
	assert.Error(t, err)
}

func TestLocalCache_Delete(t *testing.T) {
	c := NewLocalCache(time.Minute, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	require.NoError(t, c.Delete(ctx, "k"))
	_, err := c.Get(ctx, "k")
	assert.Error(t, err)

	// Deleting an absent key is not an error.
	assert.NoError(t, c.Delete(ctx, "missing"))
}

func TestLocalCache_CleanupLoop(t *testing.T) {
	c := NewLocalCache(20*time.Millisecond, zap.NewNop()).(*LocalCache)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Millisecond))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.RLock()
		_, present := c.data["k"]
		c.mu.RUnlock()
		if !present {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expired entry was never evicted by the cleanup loop")
}
