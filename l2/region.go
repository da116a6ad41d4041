// Package l2 implements the shared (remote) cache tier over a Redis-like
// key/value store, reachable through a pooled client capability.
//
// Two region layouts are supported per spec.md §4.c:
//
//   - generic: one Redis key per entry ("<namespace>:<region>:<key>"),
//     honoring per-entry TTL via native EXPIRE.
//   - hash: one Redis hash per region ("<namespace>:<region>"), with cache
//     keys as hash fields. Redis hash fields have no native per-field
//     expiry, so TTL is ignored on this layout (spec.md §4.c, §4.f).
//
// Grounded on cache/redis.go's msgpack-over-go-redis pattern, generalized
// from a single flat cache into per-region layouts, and on
// original_source's RedisHashCache.java for the hash layout's exact
// command sequence.
package l2

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/j2cache-go/j2cache/codec"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps any I/O or protocol error talking to the remote
// store. Manager treats it as L2_UNAVAILABLE: reads degrade to miss,
// writes surface the error (spec.md §7).
var ErrUnavailable = errors.New("l2: remote store unavailable")

// Pool borrows and releases a pooled remote-store client. go-redis clients
// are already internally pooled and safe for concurrent use, so Pool here
// is a thin scoping wrapper around a single shared *redis.Client — not a
// second connection pool (spec.md §6, "pooled client capability").
type Pool interface {
	Borrow(ctx context.Context) (*redis.Client, error)
	Release(c *redis.Client)
}

// staticPool adapts a single long-lived *redis.Client to Pool. The caller
// owns the client's lifecycle (teacher's cache/redis.go convention).
type staticPool struct {
	client *redis.Client
}

// NewStaticPool wraps a single shared client as a Pool. Borrow/Release are
// no-ops beyond a nil check — the client itself is the pool.
func NewStaticPool(client *redis.Client) Pool {
	return &staticPool{client: client}
}

func (p *staticPool) Borrow(_ context.Context) (*redis.Client, error) {
	if p.client == nil {
		return nil, errors.New("l2: no client configured")
	}
	return p.client, nil
}

func (p *staticPool) Release(_ *redis.Client) {}

// Layout selects the on-wire shape used for a region.
type Layout string

const (
	LayoutGeneric Layout = "generic"
	LayoutHash    Layout = "hash"
)

// Region is the L2 capability the manager drives: mirrors l1's
// get/put/evict/clear/keys plus the atomic primitives spec.md §4.c adds
// (putIfAbsent, incr/decr).
type Region interface {
	Get(ctx context.Context, key string) (value any, ok bool, err error)
	Put(ctx context.Context, key string, value any, ttl time.Duration) error
	PutIfAbsent(ctx context.Context, key string, value any) (previous any, absent bool, err error)
	Incr(ctx context.Context, key string, delta int64) (int64, error)
	Evict(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
}

// Config selects the layout and default TTL for one region.
type Config struct {
	Layout Layout
	// TTL is the default TTL applied on Put when ttl<=0; honored only on
	// LayoutGeneric (spec.md §4.c).
	TTL time.Duration
}

// Engine opens Region handles scoped to a namespace, selecting a layout
// per region per Config (spec.md §6, "storage" option).
type Engine struct {
	pool      Pool
	namespace string
	codec     codec.Codec
	timeout   time.Duration
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithCodec overrides the default tag-based codec.
func WithCodec(c codec.Codec) Option {
	return func(e *Engine) { e.codec = c }
}

// WithQueryTimeout bounds every individual remote-store call. Defaults to
// 5 seconds, matching the teacher's cache.DefaultQueryTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// New creates an L2 engine over pool, namespacing every key under
// namespace (spec.md I5). An empty namespace performs no prefixing.
func New(pool Pool, namespace string, opts ...Option) *Engine {
	e := &Engine{
		pool:      pool,
		namespace: namespace,
		codec:     codec.Default,
		timeout:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// regionKey returns the namespaced name used as the generic layout's key
// prefix or the hash layout's hash key.
func (e *Engine) regionKey(region string) string {
	if e.namespace == "" {
		return region
	}
	return e.namespace + ":" + region
}

// Open returns a Region handle for the given name and layout config.
func (e *Engine) Open(region string, cfg Config) Region {
	rk := e.regionKey(region)
	switch cfg.Layout {
	case LayoutHash:
		return &hashRegion{engine: e, regionKey: rk}
	default:
		return &genericRegion{engine: e, regionKey: rk, ttl: cfg.TTL}
	}
}

func (e *Engine) withClient(ctx context.Context, fn func(qctx context.Context, c *redis.Client) error) error {
	qctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	client, err := e.pool.Borrow(qctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer e.pool.Release(client)
	if err := fn(qctx, client); err != nil {
		if errors.Is(err, redis.Nil) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
