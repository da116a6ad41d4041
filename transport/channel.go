// Package transport implements the pub/sub channel invalidation events
// travel over (spec.md §4.d).
//
// Grounded on eventing/redis.go's Redis pub/sub Publish/Subscribe and
// eventing/otel.go's tracer/propagator pattern, narrowed from
// eventing.Client's full request/reply + consumer-group surface down to the
// one capability this spec needs: publish and subscribe on a single logical
// topic. Reconnection during a publish is bounded by a resilience.CircuitBreaker
// instead of retried indefinitely, so a down channel degrades the manager to
// local-only mutation rather than blocking it.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/j2cache-go/j2cache/logger"
	"github.com/j2cache-go/j2cache/resilience"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned by Publish when the circuit breaker is open or
// the underlying publish call fails. Callers map it to CHANNEL_UNAVAILABLE.
var ErrUnavailable = errors.New("transport: channel unavailable")

// Handler processes one raw message received on the topic. Channel
// guarantees at most one Handler call in flight at a time, invoked on a
// single dedicated receiver goroutine, and never while any caller holds a
// lock belonging to transport itself — handlers that reach back into other
// components must honor those components' own re-entrancy rules.
type Handler func(payload []byte)

// Channel is one logical pub/sub topic over a Redis client.
type Channel struct {
	client *redis.Client
	topic  string
	log    logger.Logger
	breaker *resilience.CircuitBreaker

	pubsub *redis.PubSub
	wg     sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

// Option configures a Channel at construction.
type Option func(*Channel)

// WithCircuitBreaker overrides the default breaker config guarding Publish.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Channel) { c.breaker = cb }
}

// New opens topic on client. The caller owns client's lifecycle (teacher's
// cache/redis.go convention, carried through eventing/redis.go).
func New(client *redis.Client, topic string, log logger.Logger, opts ...Option) *Channel {
	c := &Channel{
		client:  client,
		topic:   topic,
		log:     log,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Publish broadcasts payload to every subscriber of the topic. On a broken
// connection or an open breaker, it returns ErrUnavailable immediately
// instead of blocking or queuing (spec.md §4.d).
func (c *Channel) Publish(ctx context.Context, payload []byte) error {
	err := c.breaker.Execute(ctx, func() error {
		return c.client.Publish(ctx, c.topic, payload).Err()
	})
	if err != nil {
		if c.log != nil {
			c.log.Warn("transport: publish to %s failed: %s", c.topic, err)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Subscribe starts delivering messages to handler on a dedicated goroutine.
// go-redis's PubSub reconnects and re-subscribes automatically on a dropped
// connection (spec.md §4.d, "reconnection is automatic"); delivery during a
// reconnection gap is simply missed — at-least-once holds only while the
// subscription is live, matching the remote store's own pub/sub guarantees.
func (c *Channel) Subscribe(ctx context.Context, handler Handler) error {
	c.pubsub = c.client.Subscribe(ctx, c.topic)
	if _, err := c.pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ch := c.pubsub.Channel()
		for {
			select {
			case <-c.closed:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
	return nil
}

// Close stops delivery and releases the subscription. Idempotent.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.pubsub != nil {
			err = c.pubsub.Close()
		}
		c.wg.Wait()
	})
	return err
}
