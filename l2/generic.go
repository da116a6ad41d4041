package l2

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// genericRegion stores one Redis key per entry, named "<regionKey>:<key>".
// Supports native per-key TTL (spec.md §4.c).
type genericRegion struct {
	engine    *Engine
	regionKey string
	ttl       time.Duration
}

func (r *genericRegion) entryKey(key string) string {
	return r.regionKey + ":" + key
}

func (r *genericRegion) Get(ctx context.Context, key string) (any, bool, error) {
	var raw []byte
	err := r.engine.withClient(ctx, func(qctx context.Context, c *redis.Client) error {
		data, err := c.Get(qctx, r.entryKey(key)).Bytes()
		if err != nil {
			return err
		}
		raw = data
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := r.engine.codec.Decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("codec: %w", err)
	}
	return v, true, nil
}

func (r *genericRegion) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := r.engine.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	if data == nil {
		return r.Evict(ctx, key)
	}
	effectiveTTL := ttl
	if effectiveTTL <= 0 {
		effectiveTTL = r.ttl
	}
	return r.engine.withClient(ctx, func(qctx context.Context, c *redis.Client) error {
		if effectiveTTL > 0 {
			return c.Set(qctx, r.entryKey(key), data, effectiveTTL).Err()
		}
		return c.Set(qctx, r.entryKey(key), data, 0).Err()
	})
}

// PutIfAbsent uses Redis SET NX for a genuinely atomic check-and-set
// (spec.md §4.c).
func (r *genericRegion) PutIfAbsent(ctx context.Context, key string, value any) (any, bool, error) {
	data, err := r.engine.codec.Encode(value)
	if err != nil {
		return nil, false, fmt.Errorf("codec: %w", err)
	}
	var stored bool
	err = r.engine.withClient(ctx, func(qctx context.Context, c *redis.Client) error {
		ok, err := c.SetNX(qctx, r.entryKey(key), data, r.ttl).Result()
		if err != nil {
			return err
		}
		stored = ok
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if stored {
		return nil, true, nil
	}
	prev, found, err := r.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		// Lost a race with a concurrent evict; treat as if we had won.
		return nil, true, nil
	}
	return prev, false, nil
}

// Incr stores its result as a native Redis integer, bypassing the value
// codec entirely — a counter entry is not expected to be readable through
// Get afterward (spec.md §4.c, "incr/decr(region, key, delta) → newValue").
func (r *genericRegion) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	var result int64
	err := r.engine.withClient(ctx, func(qctx context.Context, c *redis.Client) error {
		v, err := c.IncrBy(qctx, r.entryKey(key), delta).Result()
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func (r *genericRegion) Evict(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.entryKey(k)
	}
	return r.engine.withClient(ctx, func(qctx context.Context, c *redis.Client) error {
		return c.Del(qctx, full...).Err()
	})
}

func (r *genericRegion) Clear(ctx context.Context) error {
	keys, err := r.Keys(ctx)
	if err != nil {
		return err
	}
	return r.Evict(ctx, keys...)
}

// Keys scans the region's key pattern with a non-blocking cursor, never a
// blocking KEYS call (spec.md §4.c).
func (r *genericRegion) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	prefix := r.regionKey + ":"
	err := r.engine.withClient(ctx, func(qctx context.Context, c *redis.Client) error {
		var cursor uint64
		for {
			batch, next, err := c.Scan(qctx, cursor, prefix+"*", 100).Result()
			if err != nil {
				return err
			}
			for _, full := range batch {
				keys = append(keys, full[len(prefix):])
			}
			cursor = next
			if cursor == 0 {
				return nil
			}
		}
	})
	return keys, err
}
