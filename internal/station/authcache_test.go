package station

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
	"github.com/seu-repo/sigec-fleetsim/internal/mocks"
)

func TestAuthCache_PutLookup(t *testing.T) {
	ctx := context.Background()
	c := NewAuthCache(8, nil, zap.NewNop())

	c.Put(ctx, "TAG1", domain.AuthAccepted, time.Minute)

	status, ok, expired := c.Lookup(ctx, "TAG1")
	require.True(t, ok)
	assert.False(t, expired)
	assert.Equal(t, domain.AuthAccepted, status)

	_, ok, expired = c.Lookup(ctx, "TAG2")
	assert.False(t, ok)
	assert.False(t, expired)
}

func TestAuthCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewAuthCache(8, nil, zap.NewNop())

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Put(ctx, "TAG1", domain.AuthAccepted, time.Minute)

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, ok, expired := c.Lookup(ctx, "TAG1")
	assert.False(t, ok)
	assert.True(t, expired)

	// The expired entry is evicted on lookup.
	assert.Equal(t, 0, c.Len())
}

func TestAuthCache_FIFOEviction(t *testing.T) {
	ctx := context.Background()
	c := NewAuthCache(2, nil, zap.NewNop())

	c.Put(ctx, "A", domain.AuthAccepted, time.Minute)
	c.Put(ctx, "B", domain.AuthAccepted, time.Minute)
	c.Put(ctx, "C", domain.AuthAccepted, time.Minute)

	_, ok, _ := c.Lookup(ctx, "A")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok, _ = c.Lookup(ctx, "B")
	assert.True(t, ok)
	_, ok, _ = c.Lookup(ctx, "C")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestAuthCache_UpdateDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	c := NewAuthCache(2, nil, zap.NewNop())

	c.Put(ctx, "A", domain.AuthAccepted, time.Minute)
	c.Put(ctx, "B", domain.AuthAccepted, time.Minute)
	c.Put(ctx, "A", domain.AuthBlocked, time.Minute)

	status, ok, _ := c.Lookup(ctx, "A")
	require.True(t, ok)
	assert.Equal(t, domain.AuthBlocked, status)
	_, ok, _ = c.Lookup(ctx, "B")
	assert.True(t, ok)
}

func TestAuthCache_SharedBackend(t *testing.T) {
	ctx := context.Background()
	shared := mocks.NewMockCache()

	writer := NewAuthCache(8, shared, zap.NewNop())
	writer.Put(ctx, "TAG1", domain.AuthAccepted, time.Minute)

	// A second cache with the same backend sees the verdict without a local hit.
	reader := NewAuthCache(8, shared, zap.NewNop())
	status, ok, _ := reader.Lookup(ctx, "TAG1")
	require.True(t, ok)
	assert.Equal(t, domain.AuthAccepted, status)
}

func TestAuthCache_Clear(t *testing.T) {
	ctx := context.Background()
	c := NewAuthCache(8, nil, zap.NewNop())
	c.Put(ctx, "TAG1", domain.AuthAccepted, time.Minute)
	c.Clear(ctx)
	assert.Equal(t, 0, c.Len())
}
