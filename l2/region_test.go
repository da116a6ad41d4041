package l2

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestEngine(t *testing.T) (*miniredis.Miniredis, *Engine) {
	mr, client := newTestRedis(t)
	t.Cleanup(func() { client.Close() })
	return mr, New(NewStaticPool(client), "test")
}

func testLayouts(t *testing.T, layout Layout) {
	t.Run(string(layout), func(t *testing.T) {
		_, e := newTestEngine(t)
		ctx := context.Background()
		r := e.Open("widgets", Config{Layout: layout, TTL: time.Minute})

		_, ok, err := r.Get(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, r.Put(ctx, "a", "hello", 0))
		v, ok, err := r.Get(ctx, "a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "hello", v)

		prev, absent, err := r.PutIfAbsent(ctx, "a", "world")
		require.NoError(t, err)
		assert.False(t, absent)
		assert.Equal(t, "hello", prev)

		_, absent, err = r.PutIfAbsent(ctx, "b", "fresh")
		require.NoError(t, err)
		assert.True(t, absent)
		v, ok, err = r.Get(ctx, "b")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "fresh", v)

		n, err := r.Incr(ctx, "counter", 5)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
		n, err = r.Incr(ctx, "counter", 3)
		require.NoError(t, err)
		assert.Equal(t, int64(8), n)

		keys, err := r.Keys(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b", "counter"}, keys)

		require.NoError(t, r.Evict(ctx, "a"))
		_, ok, err = r.Get(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, r.Clear(ctx))
		keys, err = r.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestRegionLayouts(t *testing.T) {
	testLayouts(t, LayoutGeneric)
	testLayouts(t, LayoutHash)
}

func TestGenericLayoutTTL(t *testing.T) {
	mr, e := newTestEngine(t)
	ctx := context.Background()
	r := e.Open("widgets", Config{Layout: LayoutGeneric, TTL: 2 * time.Second})

	require.NoError(t, r.Put(ctx, "a", "v", 0))
	mr.FastForward(3 * time.Second)

	_, ok, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashLayoutIgnoresTTL(t *testing.T) {
	mr, e := newTestEngine(t)
	ctx := context.Background()
	r := e.Open("widgets", Config{Layout: LayoutHash, TTL: 2 * time.Second})

	require.NoError(t, r.Put(ctx, "a", "v", 0))
	mr.FastForward(3 * time.Second)

	v, ok, err := r.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestNamespaceIsolation(t *testing.T) {
	_, client := newTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	e1 := New(NewStaticPool(client), "app1")
	e2 := New(NewStaticPool(client), "app2")

	r1 := e1.Open("widgets", Config{Layout: LayoutGeneric})
	r2 := e2.Open("widgets", Config{Layout: LayoutGeneric})

	require.NoError(t, r1.Put(ctx, "a", "from-app1", 0))
	_, ok, err := r2.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnavailableWrapsError(t *testing.T) {
	e := New(NewStaticPool(nil), "test")
	r := e.Open("widgets", Config{Layout: LayoutGeneric})
	_, _, err := r.Get(context.Background(), "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}
