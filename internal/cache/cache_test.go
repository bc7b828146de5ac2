package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/cloud-vm-monitor/internal/store/memory"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

func TestMemoryCache_TTL(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	c.evictExpired()
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_Incr(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	n, err := c.Incr(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.Incr(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemoryCache_Closed(t *testing.T) {
	c := NewMemoryCache(time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, _, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrClosed)
}

func TestJSONHelpers(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, SetJSON(ctx, c, "obj", map[string]int{"a": 1}, 0))

	var out map[string]int
	ok, err := GetJSON(ctx, c, "obj", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, out["a"])

	ok, err = GetJSON(ctx, c, "missing", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserStore_CachesLookups(t *testing.T) {
	backing := memory.NewUserStore(&models.User{ID: "u1", Email: "a@example.com", IsActive: true})
	c := NewMemoryCache(0)
	defer c.Close()

	s := NewUserStore(backing, c, time.Minute)
	ctx := context.Background()

	u, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", u.Email)

	backing.Put(&models.User{ID: "u1", Email: "b@example.com", IsActive: true})

	u, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", u.Email)

	require.NoError(t, s.Invalidate(ctx, "u1"))
	u, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", u.Email)
}
