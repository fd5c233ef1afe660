package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Versioned, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, "stats", time.Minute), mr
}

func TestVersionedFetchJSONCachesUntilBump(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"calls": calls}, nil
	}

	key, err := c.BuildKey(ctx, "stats", "sales", "2025", "Kim")
	require.NoError(t, err)
	assert.Equal(t, "stats:sales:2025:Kim:1", key)

	var got map[string]int
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, got["calls"])

	require.NoError(t, c.Bump(ctx))
	key, err = c.BuildKey(ctx, "stats", "sales", "2025", "Kim")
	require.NoError(t, err)
	assert.Equal(t, "stats:sales:2025:Kim:2", key)
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	assert.Equal(t, 2, calls)
}

func TestVersionedLoaderErrorIsNotCached(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var got string
	err := c.FetchJSON(ctx, "k", &got, func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k"))
}

func TestVersionedTTLApplied(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	var got string
	require.NoError(t, c.FetchJSON(ctx, "k", &got, func(context.Context) (any, error) { return "v", nil }))
	assert.Equal(t, time.Minute, mr.TTL("k"))
	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("k"))
}

func TestVersionedDisabledCallsLoader(t *testing.T) {
	c := NewVersioned(nil, "stats", time.Minute)
	ctx := context.Background()
	assert.False(t, c.Enabled())

	key, err := c.BuildKey(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a:b", key)

	var got int
	require.NoError(t, c.FetchJSON(ctx, key, &got, func(context.Context) (any, error) { return 7, nil }))
	assert.Equal(t, 7, got)
	assert.NoError(t, c.Bump(ctx))
}
