// Package codec serializes cache values to a self-describing byte string.
//
// The wire format is a single tag byte identifying the value's shape
// followed by a framed payload: strings, booleans, fixed-width numbers,
// byte arrays and dates are encoded directly; anything else falls back to
// an opaque, length-prefixed msgpack payload under TagObject.
//
// Decode always inverts Encode: for any supported v, Decode(Encode(v)) is
// structurally equal to v, except that a Go int is written under TagInt64
// and decodes as int64, and a time.Time decodes in UTC at millisecond
// precision. Encoding nil returns (nil, nil) — callers use
// that as the signal to evict rather than store (see manager.Manager.Put).
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Tag identifies the shape of the payload that follows it on the wire.
type Tag byte

const (
	TagNull Tag = iota
	TagString
	TagBool
	TagInt8
	TagInt16
	TagInt32
	TagInt64
	TagFloat32
	TagFloat64
	TagBytes
	TagDate
	TagObject
)

// Codec converts values to and from a self-describing byte string.
//
// Implementations MUST be injective on inputs: Decode(Encode(v)) must be
// structurally equal to v for every v they accept.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// Default is the tag-based Codec used by l2.Region implementations unless a
// caller supplies their own adapter.
var Default Codec = tagCodec{}

type tagCodec struct{}

// Encode serializes v to a tagged byte string. Encoding nil returns (nil, nil).
func (tagCodec) Encode(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		return append([]byte{byte(TagString)}, []byte(val)...), nil
	case bool:
		b := byte(0)
		if val {
			b = 1
		}
		return []byte{byte(TagBool), b}, nil
	case int8:
		return []byte{byte(TagInt8), byte(val)}, nil
	case int16:
		buf := make([]byte, 3)
		buf[0] = byte(TagInt16)
		binary.BigEndian.PutUint16(buf[1:], uint16(val))
		return buf, nil
	case int32:
		buf := make([]byte, 5)
		buf[0] = byte(TagInt32)
		binary.BigEndian.PutUint32(buf[1:], uint32(val))
		return buf, nil
	case int:
		buf := make([]byte, 9)
		buf[0] = byte(TagInt64)
		binary.BigEndian.PutUint64(buf[1:], uint64(int64(val)))
		return buf, nil
	case int64:
		buf := make([]byte, 9)
		buf[0] = byte(TagInt64)
		binary.BigEndian.PutUint64(buf[1:], uint64(val))
		return buf, nil
	case float32:
		buf := make([]byte, 5)
		buf[0] = byte(TagFloat32)
		binary.BigEndian.PutUint32(buf[1:], math.Float32bits(val))
		return buf, nil
	case float64:
		buf := make([]byte, 9)
		buf[0] = byte(TagFloat64)
		binary.BigEndian.PutUint64(buf[1:], math.Float64bits(val))
		return buf, nil
	case []byte:
		return append([]byte{byte(TagBytes)}, val...), nil
	case time.Time:
		buf := make([]byte, 9)
		buf[0] = byte(TagDate)
		binary.BigEndian.PutUint64(buf[1:], uint64(val.UnixMilli()))
		return buf, nil
	default:
		payload, err := msgpack.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("codec: marshal object: %w", err)
		}
		buf := make([]byte, 5+len(payload))
		buf[0] = byte(TagObject)
		binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
		copy(buf[5:], payload)
		return buf, nil
	}
}

// Decode inverts Encode. An empty data slice decodes to nil.
func (tagCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	tag := Tag(data[0])
	body := data[1:]
	switch tag {
	case TagNull:
		return nil, nil
	case TagString:
		return string(body), nil
	case TagBool:
		if len(body) != 1 {
			return nil, fmt.Errorf("codec: malformed bool payload")
		}
		return body[0] != 0, nil
	case TagInt8:
		if len(body) != 1 {
			return nil, fmt.Errorf("codec: malformed int8 payload")
		}
		return int8(body[0]), nil
	case TagInt16:
		if len(body) != 2 {
			return nil, fmt.Errorf("codec: malformed int16 payload")
		}
		return int16(binary.BigEndian.Uint16(body)), nil
	case TagInt32:
		if len(body) != 4 {
			return nil, fmt.Errorf("codec: malformed int32 payload")
		}
		return int32(binary.BigEndian.Uint32(body)), nil
	case TagInt64:
		if len(body) != 8 {
			return nil, fmt.Errorf("codec: malformed int64 payload")
		}
		return int64(binary.BigEndian.Uint64(body)), nil
	case TagFloat32:
		if len(body) != 4 {
			return nil, fmt.Errorf("codec: malformed float32 payload")
		}
		return math.Float32frombits(binary.BigEndian.Uint32(body)), nil
	case TagFloat64:
		if len(body) != 8 {
			return nil, fmt.Errorf("codec: malformed float64 payload")
		}
		return math.Float64frombits(binary.BigEndian.Uint64(body)), nil
	case TagBytes:
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	case TagDate:
		if len(body) != 8 {
			return nil, fmt.Errorf("codec: malformed date payload")
		}
		ms := int64(binary.BigEndian.Uint64(body))
		return time.UnixMilli(ms).UTC(), nil
	case TagObject:
		if len(body) < 4 {
			return nil, fmt.Errorf("codec: truncated object frame")
		}
		frameLen := binary.BigEndian.Uint32(body[:4])
		payload := body[4:]
		if uint32(len(payload)) != frameLen {
			return nil, fmt.Errorf("codec: object frame length mismatch: want %d got %d", frameLen, len(payload))
		}
		var v any
		if err := msgpack.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("codec: unmarshal object: %w", err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("codec: unknown tag %d", tag)
	}
}
