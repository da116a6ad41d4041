package protocol

import (
	"testing"

	"github.com/j2cache-go/j2cache/codec"
	"github.com/j2cache-go/j2cache/l1"
	"github.com/j2cache-go/j2cache/logger"
	"github.com/stretchr/testify/assert"
)

func TestDispatcherDiscardsSelfSent(t *testing.T) {
	engine := l1.New(logger.NewTestLogger())
	defer engine.Close()
	engine.Configure("widgets", l1.RegionConfig{})
	engine.Put("widgets", "a", "v")

	d := NewDispatcher(engine, codec.Default, "node-1", logger.NewTestLogger())
	d.Handle(Event{Operation: OpEvict, Region: "widgets", Keys: []string{"a"}, SenderID: "node-1"})

	v, ok := engine.Get("widgets", "a")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestDispatcherEvictFromPeer(t *testing.T) {
	engine := l1.New(logger.NewTestLogger())
	defer engine.Close()
	engine.Configure("widgets", l1.RegionConfig{})
	engine.Put("widgets", "a", "v")

	d := NewDispatcher(engine, codec.Default, "node-1", logger.NewTestLogger())
	d.Handle(Event{Operation: OpEvict, Region: "widgets", Keys: []string{"a"}, SenderID: "node-2"})

	_, ok := engine.Get("widgets", "a")
	assert.False(t, ok)
}

func TestDispatcherClearFromPeer(t *testing.T) {
	engine := l1.New(logger.NewTestLogger())
	defer engine.Close()
	engine.Configure("widgets", l1.RegionConfig{})
	engine.Put("widgets", "a", "v")
	engine.Put("widgets", "b", "w")

	d := NewDispatcher(engine, codec.Default, "node-1", logger.NewTestLogger())
	d.Handle(Event{Operation: OpClear, Region: "widgets", SenderID: "node-2"})

	assert.Empty(t, engine.Keys("widgets"))
}

func TestDispatcherJoinQuit(t *testing.T) {
	engine := l1.New(logger.NewTestLogger())
	defer engine.Close()

	d := NewDispatcher(engine, codec.Default, "node-1", logger.NewTestLogger())
	d.Handle(Event{Operation: OpJoin, SenderID: "node-2"})
	assert.Equal(t, []string{"node-2"}, d.Peers())

	d.Handle(Event{Operation: OpQuit, SenderID: "node-2"})
	assert.Empty(t, d.Peers())
}

func TestDispatcherUnknownOperationIgnored(t *testing.T) {
	engine := l1.New(logger.NewTestLogger())
	defer engine.Close()
	engine.Configure("widgets", l1.RegionConfig{})
	engine.Put("widgets", "a", "v")

	d := NewDispatcher(engine, codec.Default, "node-1", logger.NewTestLogger())
	d.Handle(Event{Operation: "BOGUS", Region: "widgets", SenderID: "node-2"})

	v, ok := engine.Get("widgets", "a")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}
