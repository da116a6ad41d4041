package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/j2cache-go/j2cache/l1"
	"github.com/j2cache-go/j2cache/l2"
	"github.com/j2cache-go/j2cache/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, mr *miniredis.Miniredis, senderID string, opts ...Option) *Manager {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	deps := Deps{
		Pool:        l2.NewStaticPool(client),
		Channel:     client,
		ChannelName: "test-channel",
		Namespace:   "test",
		Logger:      logger.NewTestLogger(),
	}
	allOpts := append([]Option{WithSenderID(senderID)}, opts...)
	m, err := New(context.Background(), deps, allOpts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestSingleNodePutGet(t *testing.T) {
	mr := miniredis.RunT(t)
	m := newTestManager(t, mr, "node-a")
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "users", "u1", map[string]string{"name": "a"}))

	v, ok, err := m.Get(ctx, "users", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"name": "a"}, v)
}

func TestCrossNodeEviction(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTestManager(t, mr, "node-a")
	b := newTestManager(t, mr, "node-b")
	ctx := context.Background()

	// Prime node B's L1 with a stale value so we can observe it get evicted.
	require.NoError(t, b.Put(ctx, "users", "u1", "stale"))
	_, ok := b.l1.Get("users", "u1")
	require.True(t, ok)

	require.NoError(t, a.Put(ctx, "users", "u1", "a"))

	waitFor(t, time.Second, func() bool {
		_, ok := b.l1.Get("users", "u1")
		return !ok
	})

	v, ok, err := b.Get(ctx, "users", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestLoaderReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTestManager(t, mr, "node-a")
	b := newTestManager(t, mr, "node-b")
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context, key string) (any, error) {
		calls++
		return "loaded", nil
	}

	v, err := a.GetWithLoader(ctx, "users", "u2", loader)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v)

	v, err = a.GetWithLoader(ctx, "users", "u2", loader)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v)
	assert.Equal(t, 1, calls, "loader should only run once; second call is an L1 hit")

	waitFor(t, time.Second, func() bool {
		_, ok := b.l1.Get("users", "u2")
		return !ok
	})
}

func TestLoaderErrorSurfacesAndStoresNothing(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTestManager(t, mr, "node-a")
	ctx := context.Background()

	wantErr := errors.New("boom")
	_, err := a.GetWithLoader(ctx, "users", "u3", func(context.Context, string) (any, error) {
		return nil, wantErr
	})
	require.Error(t, err)
	kind, ok := Kind(err)
	require.True(t, ok)
	assert.Equal(t, KindLoader, kind)

	_, ok, err = a.Get(ctx, "users", "u3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCapacityEviction(t *testing.T) {
	mr := miniredis.RunT(t)
	m := newTestManager(t, mr, "node-a")
	ctx := context.Background()

	require.NoError(t, m.ConfigureRegion("limited", l1.RegionConfig{MaxEntries: 2}, l2.Config{Layout: l2.LayoutGeneric}))

	require.NoError(t, m.Put(ctx, "limited", "k1", "v1"))
	require.NoError(t, m.Put(ctx, "limited", "k2", "v2"))
	require.NoError(t, m.Put(ctx, "limited", "k3", "v3"))

	assert.ElementsMatch(t, []string{"k2", "k3"}, m.l1.Keys("limited"))
}

func TestTTLExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	m := newTestManager(t, mr, "node-a", WithDefaultL1Config(l1.RegionConfig{TTL: time.Second}))
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "sessions", "k", "v"))

	v, ok := m.l1.Get("sessions", "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(1500 * time.Millisecond)

	_, ok = m.l1.Get("sessions", "k")
	assert.False(t, ok)
}

func TestNamespaceIsolationAcrossManagers(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTestManager(t, mr, "node-a")

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	depsB := Deps{
		Pool:        l2.NewStaticPool(client),
		Channel:     client,
		ChannelName: "test-channel-2",
		Namespace:   "other-namespace",
		Logger:      logger.NewTestLogger(),
	}
	b, err := New(context.Background(), depsB, WithSenderID("node-b"))
	require.NoError(t, err)
	defer b.Shutdown(context.Background())

	require.NoError(t, a.Put(context.Background(), "users", "u1", "a"))

	keys, err := b.Keys(context.Background(), "users")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestEvictAndClear(t *testing.T) {
	mr := miniredis.RunT(t)
	m := newTestManager(t, mr, "node-a")
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "users", "a", "1"))
	require.NoError(t, m.Put(ctx, "users", "b", "2"))

	require.NoError(t, m.Evict(ctx, "users", "a"))
	_, ok, err := m.Get(ctx, "users", "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Clear(ctx, "users"))
	_, ok, err = m.Get(ctx, "users", "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBadRegionName(t *testing.T) {
	mr := miniredis.RunT(t)
	m := newTestManager(t, mr, "node-a")
	ctx := context.Background()

	_, _, err := m.Get(ctx, "", "a")
	kind, ok := Kind(err)
	require.True(t, ok)
	assert.Equal(t, KindBadRegion, kind)

	_, _, err = m.Get(ctx, "has:colon", "a")
	kind, ok = Kind(err)
	require.True(t, ok)
	assert.Equal(t, KindBadRegion, kind)

	_, _, err = m.Get(ctx, "_", "a")
	kind, ok = Kind(err)
	require.True(t, ok)
	assert.Equal(t, KindBadRegion, kind)
}

func TestShutdownRejectsNewOperations(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	m, err := New(context.Background(), Deps{
		Pool:        l2.NewStaticPool(client),
		Channel:     client,
		ChannelName: "shutdown-test",
		Namespace:   "test",
		Logger:      logger.NewTestLogger(),
	}, WithSenderID("node-a"))
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background())) // idempotent

	_, _, err = m.Get(context.Background(), "users", "a")
	kind, ok := Kind(err)
	require.True(t, ok)
	assert.Equal(t, KindShuttingDown, kind)
}

func TestChannelOutageDegradesLocally(t *testing.T) {
	mr := miniredis.RunT(t)
	b := newTestManager(t, mr, "node-b")
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "users", "u3", "b"))

	// Node A uses a separate connection for its channel than for L2, so we
	// can sever only the channel link and leave the shared store reachable.
	l2Client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer l2Client.Close()
	channelClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	a, err := New(ctx, Deps{
		Pool:        l2.NewStaticPool(l2Client),
		Channel:     channelClient,
		ChannelName: "test-channel",
		Namespace:   "test",
		Logger:      logger.NewTestLogger(),
	}, WithSenderID("node-a"))
	require.NoError(t, err)
	defer a.Shutdown(ctx)

	channelClient.Close() // simulate transport outage without touching L2

	putErr := a.Put(ctx, "users", "u3", "c")
	assert.NoError(t, putErr, "local mutation still succeeds when the channel is down")

	_, ok := b.l1.Get("users", "u3")
	assert.True(t, ok, "B's stale L1 entry is not retroactively corrected")
}
