package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	tests := []struct {
		name string
		val  any
	}{
		{"string", "hello region"},
		{"empty string", ""},
		{"bool true", true},
		{"bool false", false},
		{"int8", int8(-12)},
		{"int16", int16(-1234)},
		{"int32", int32(123456)},
		{"int64", int64(-123456789012)},
		{"float32", float32(3.5)},
		{"float64", float64(2.71828)},
		{"bytes", []byte{0x01, 0x02, 0xff}},
		{"date", now},
		{"object map", map[string]any{"name": "a", "city": "nyc"}},
		{"object slice", []any{"x", "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Default.Encode(tt.val)
			assert.NoError(t, err)
			got, err := Default.Decode(data)
			assert.NoError(t, err)
			if tt.name == "date" {
				assert.WithinDuration(t, tt.val.(time.Time), got.(time.Time), 0)
				return
			}
			assert.Equal(t, tt.val, got)
		})
	}
}

func TestEncodeNilDeclinesToStore(t *testing.T) {
	data, err := Default.Encode(nil)
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestDecodeEmptyIsNil(t *testing.T) {
	v, err := Default.Decode(nil)
	assert.NoError(t, err)
	assert.Nil(t, v)

	v, err = Default.Decode([]byte{})
	assert.NoError(t, err)
	assert.Nil(t, v)
}

func TestDecodeUnknownTag(t *testing.T) {
	_, err := Default.Decode([]byte{0xfe, 0x01})
	assert.Error(t, err)
}

func TestDecodeTruncatedObjectFrame(t *testing.T) {
	_, err := Default.Decode([]byte{byte(TagObject), 0x00, 0x00})
	assert.Error(t, err)
}
