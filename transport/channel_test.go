package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	sub := New(client, "cache.invalidate", nil)
	defer sub.Close()

	received := make(chan []byte, 1)
	var once sync.Once
	require.NoError(t, sub.Subscribe(ctx, func(payload []byte) {
		once.Do(func() { received <- payload })
	}))

	pub := New(client, "cache.invalidate", nil)
	defer pub.Close()

	require.NoError(t, pub.Publish(ctx, []byte("hello")))

	select {
	case got := <-received:
		assert.Equal(t, []byte("hello"), got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	client := newTestClient(t)
	c := New(client, "topic", nil)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestPublishUnavailableAfterClientClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := New(client, "topic", nil)
	client.Close()

	err := c.Publish(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}
