package protocol

import (
	"sync"

	"github.com/j2cache-go/j2cache/codec"
	"github.com/j2cache-go/j2cache/l1"
	"github.com/j2cache-go/j2cache/logger"
)

// Dispatcher applies received Events to an l1.Engine per the dispatch table
// in spec.md §4.e. EVICT and CLEAR only ever touch L1 — L2 is never mutated
// by a received event, since the peer that originated the mutation already
// wrote L2 itself.
type Dispatcher struct {
	l1       *l1.Engine
	codec    codec.Codec
	senderID string
	log      logger.Logger

	mu    sync.Mutex
	peers map[string]struct{}
}

// NewDispatcher creates a Dispatcher that discards events originating from
// senderID (I2) and applies every other recognized operation to engine.
func NewDispatcher(engine *l1.Engine, c codec.Codec, senderID string, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		l1:       engine,
		codec:    c,
		senderID: senderID,
		log:      log,
		peers:    make(map[string]struct{}),
	}
}

// HandleRaw decodes payload and dispatches it. Malformed payloads and
// unknown operations are logged and ignored (forward-compatible).
func (d *Dispatcher) HandleRaw(payload []byte) {
	ev, err := Decode(d.codec, payload)
	if err != nil {
		if d.log != nil {
			d.log.Warn("protocol: discarding malformed event: %s", err)
		}
		return
	}
	d.Handle(ev)
}

// Handle applies ev directly, bypassing decode. Exposed for tests and for
// callers that already have a decoded Event.
func (d *Dispatcher) Handle(ev Event) {
	if ev.SenderID == d.senderID {
		return
	}

	switch ev.Operation {
	case OpJoin:
		d.mu.Lock()
		d.peers[ev.SenderID] = struct{}{}
		d.mu.Unlock()
	case OpQuit:
		d.mu.Lock()
		delete(d.peers, ev.SenderID)
		d.mu.Unlock()
	case OpEvict:
		if len(ev.Keys) == 0 {
			return
		}
		d.l1.Evict(ev.Region, l1.ReasonChannel, ev.Keys...)
	case OpClear:
		d.l1.Clear(ev.Region)
	default:
		if d.log != nil {
			d.log.Warn("protocol: ignoring unknown operation %q", ev.Operation)
		}
	}
}

// Peers returns a snapshot of currently known peer sender ids.
func (d *Dispatcher) Peers() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.peers))
	for id := range d.peers {
		ids = append(ids, id)
	}
	return ids
}
