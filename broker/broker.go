// Package broker is the thin public façade over manager.Manager: it
// accepts (region, key) with key of arbitrary scalar type, coerces key to
// a string by a deterministic rule, and forwards to the manager (spec.md
// §4.g). It is not part of the coherence core.
//
// Grounded on cache/doc.go's documented Get[T]/Exec generic-helper pattern,
// narrowed to the single-value get/put contract this spec exposes.
package broker

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/j2cache-go/j2cache/manager"
)

// Key is any value broker will coerce to a cache key string.
type Key interface{}

// CoerceKey renders key as a string using the deterministic rule spec.md
// §4.g specifies: integers and floats in base 10, booleans as "true"/
// "false", byte slices as base64, and strings unchanged.
func CoerceKey(key Key) (string, error) {
	switch v := key.(type) {
	case string:
		return v, nil
	case []byte:
		return base64.StdEncoding.EncodeToString(v), nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	case float32, float64:
		return fmt.Sprintf("%v", v), nil
	default:
		return "", fmt.Errorf("broker: unsupported key type %T", key)
	}
}

// Get retrieves and type-asserts the value at (region, key). Mirrors
// cache.Get[T]'s generic shape.
func Get[T any](ctx context.Context, m *manager.Manager, region string, key Key) (bool, T, error) {
	var zero T
	k, err := CoerceKey(key)
	if err != nil {
		return false, zero, err
	}
	v, ok, err := m.Get(ctx, region, k)
	if err != nil || !ok {
		return false, zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return false, zero, fmt.Errorf("broker: cannot convert value of type %T to %T", v, zero)
	}
	return true, typed, nil
}

// Put stores value under (region, key).
func Put(ctx context.Context, m *manager.Manager, region string, key Key, value any) error {
	k, err := CoerceKey(key)
	if err != nil {
		return err
	}
	return m.Put(ctx, region, k, value)
}

// Invoker produces the value for a broker.Exec miss. The bool distinguishes
// "not found" (nothing is cached) from "found a zero value", mirroring
// cache.Invoker.
type Invoker[T any] func(ctx context.Context) (T, bool, error)

// Exec is a read-through helper: it checks (region, key) first, and on a
// miss calls invoke, storing the result only when invoke reports found=true.
func Exec[T any](ctx context.Context, m *manager.Manager, region string, key Key, invoke Invoker[T]) (bool, T, error) {
	var zero T
	k, err := CoerceKey(key)
	if err != nil {
		return false, zero, err
	}

	found, v, err := Get[T](ctx, m, region, k)
	if err != nil {
		return false, zero, err
	}
	if found {
		return true, v, nil
	}

	result, ok, err := invoke(ctx)
	if err != nil {
		return false, zero, err
	}
	if !ok {
		return false, zero, nil
	}

	_ = m.Put(ctx, region, k, result)
	return true, result, nil
}
