package l2

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hashRegion stores an entire region as one Redis hash, cache keys as hash
// fields. Grounded on original_source's RedisHashCache.java. Redis hash
// fields carry no native per-field expiry, so TTL is ignored on this layout
// (spec.md §4.c) — callers wanting per-entry TTL should use LayoutGeneric.
type hashRegion struct {
	engine    *Engine
	regionKey string
}

func (r *hashRegion) Get(ctx context.Context, key string) (any, bool, error) {
	var raw []byte
	var found bool
	err := r.engine.withClient(ctx, func(qctx context.Context, c *redis.Client) error {
		data, err := c.HGet(qctx, r.regionKey, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		raw = data
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	v, err := r.engine.codec.Decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("codec: %w", err)
	}
	return v, true, nil
}

// Put ignores ttl — see type doc.
func (r *hashRegion) Put(ctx context.Context, key string, value any, _ time.Duration) error {
	data, err := r.engine.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	if data == nil {
		return r.Evict(ctx, key)
	}
	return r.engine.withClient(ctx, func(qctx context.Context, c *redis.Client) error {
		return c.HSet(qctx, r.regionKey, key, data).Err()
	})
}

// PutIfAbsent uses HSETNX, which is atomic server-side. This departs from
// RedisHashCache.java's exists()-then-put() sequence, which races under
// concurrent writers; HSETNX closes that race (spec.md Open Questions).
func (r *hashRegion) PutIfAbsent(ctx context.Context, key string, value any) (any, bool, error) {
	data, err := r.engine.codec.Encode(value)
	if err != nil {
		return nil, false, fmt.Errorf("codec: %w", err)
	}
	var stored bool
	err = r.engine.withClient(ctx, func(qctx context.Context, c *redis.Client) error {
		ok, err := c.HSetNX(qctx, r.regionKey, key, data).Result()
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
		return nil, true, nil
	}
	return prev, false, nil
}

// Incr stores its result as a native Redis integer hash field, bypassing
// the value codec — see genericRegion.Incr.
func (r *hashRegion) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	var result int64
	err := r.engine.withClient(ctx, func(qctx context.Context, c *redis.Client) error {
		v, err := c.HIncrBy(qctx, r.regionKey, key, delta).Result()
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func (r *hashRegion) Evict(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.engine.withClient(ctx, func(qctx context.Context, c *redis.Client) error {
		return c.HDel(qctx, r.regionKey, keys...).Err()
	})
}

// Clear deletes the region's entire hash key in one call.
func (r *hashRegion) Clear(ctx context.Context) error {
	return r.engine.withClient(ctx, func(qctx context.Context, c *redis.Client) error {
		return c.Del(qctx, r.regionKey).Err()
	})
}

// Keys returns the region's field names as plain UTF-8 strings. This departs
// from the apparent behavior of the Java original, which re-deserializes
// field names through its value codec — field names were never encoded with
// it, so treating them as already-plain strings is the corrected reading
// (spec.md Open Questions).
func (r *hashRegion) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.engine.withClient(ctx, func(qctx context.Context, c *redis.Client) error {
		ks, err := c.HKeys(qctx, r.regionKey).Result()
		if err != nil {
			return err
		}
		keys = ks
		return nil
	})
	return keys, err
}
