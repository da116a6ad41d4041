// Package protocol implements the cache channel wire format and dispatch
// rules broadcast over transport.Channel (spec.md §4.e).
package protocol

import (
	"fmt"

	"github.com/j2cache-go/j2cache/codec"
)

// Operation identifies what an Event asks peers to do.
type Operation string

const (
	OpJoin  Operation = "JOIN"
	OpQuit  Operation = "QUIT"
	OpEvict Operation = "EVICT"
	OpClear Operation = "CLEAR"
)

// Event is the wire record exchanged over the channel: (operation, region,
// keys, senderId) per spec.md §4.e. Field order/types are a design, not a
// byte-exact wire contract — encoding goes through codec.
type Event struct {
	Operation Operation
	Region    string
	Keys      []string
	SenderID  string
}

// wireEvent is the concrete shape handed to codec.Encode/Decode — codec's
// TagObject path round-trips it through msgpack, so field names matter for
// the wire format even though Event itself carries no struct tags.
type wireEvent struct {
	Op     string   `msgpack:"op"`
	Region string   `msgpack:"region"`
	Keys   []string `msgpack:"keys"`
	Sender string   `msgpack:"sender"`
}

// Encode serializes ev with c.
func Encode(c codec.Codec, ev Event) ([]byte, error) {
	w := wireEvent{Op: string(ev.Operation), Region: ev.Region, Keys: ev.Keys, Sender: ev.SenderID}
	data, err := c.Encode(w)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode event: %w", err)
	}
	return data, nil
}

// Decode deserializes raw into an Event using c.
func Decode(c codec.Codec, raw []byte) (Event, error) {
	v, err := c.Decode(raw)
	if err != nil {
		return Event{}, fmt.Errorf("protocol: decode event: %w", err)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return Event{}, fmt.Errorf("protocol: decode event: unexpected payload shape %T", v)
	}

	ev := Event{
		Operation: Operation(stringField(m, "op")),
		Region:    stringField(m, "region"),
		SenderID:  stringField(m, "sender"),
	}
	if raw, ok := m["keys"]; ok {
		switch keys := raw.(type) {
		case []string:
			ev.Keys = keys
		case []interface{}:
			ev.Keys = make([]string, 0, len(keys))
			for _, k := range keys {
				if s, ok := k.(string); ok {
					ev.Keys = append(ev.Keys, s)
				}
			}
		}
	}
	return ev, nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
