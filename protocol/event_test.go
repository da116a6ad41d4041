package protocol

import (
	"testing"

	"github.com/j2cache-go/j2cache/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRoundTrip(t *testing.T) {
	ev := Event{Operation: OpEvict, Region: "widgets", Keys: []string{"a", "b"}, SenderID: "node-1"}

	data, err := Encode(codec.Default, ev)
	require.NoError(t, err)

	got, err := Decode(codec.Default, data)
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestEventRoundTripEmptyKeys(t *testing.T) {
	ev := Event{Operation: OpClear, Region: "widgets", SenderID: "node-1"}

	data, err := Encode(codec.Default, ev)
	require.NoError(t, err)

	got, err := Decode(codec.Default, data)
	require.NoError(t, err)
	assert.Equal(t, OpClear, got.Operation)
	assert.Equal(t, "widgets", got.Region)
	assert.Equal(t, "node-1", got.SenderID)
	assert.Empty(t, got.Keys)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode(codec.Default, []byte{0xFF, 0xFF})
	require.Error(t, err)
}
