package docstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDateTime int64

func (d fakeDateTime) Time() time.Time { return time.UnixMilli(int64(d)).UTC() }

func TestFields_Int(t *testing.T) {
	f := Fields{
		"int": 3, "int32": int32(4), "int64": int64(5), "float": float64(6),
		"frac": 1.5, "num": json.Number("7"), "text": "8", "bad": "x",
	}
	tests := map[string]struct {
		want int
		ok   bool
	}{
		"int": {3, true}, "int32": {4, true}, "int64": {5, true}, "float": {6, true},
		"frac": {0, false}, "num": {7, true}, "text": {8, true}, "bad": {0, false}, "missing": {0, false},
	}
	for key, tt := range tests {
		got, ok := f.Int(key)
		assert.Equal(t, tt.want, got, key)
		assert.Equal(t, tt.ok, ok, key)
	}
}

func TestFields_Time(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	f := Fields{
		"native": now,
		"bson":   fakeDateTime(now.UnixMilli()),
		"text":   now.Format(time.RFC3339Nano),
		"junk":   "yesterday",
	}
	for _, key := range []string{"native", "bson", "text"} {
		got, ok := f.Time(key)
		assert.True(t, ok, key)
		assert.True(t, got.Equal(now), key)
	}
	_, ok := f.Time("junk")
	assert.False(t, ok)
}

func TestCompare(t *testing.T) {
	assert.True(t, Compare(int32(5), OpLTE, 5))
	assert.True(t, Compare(3.0, OpLT, int64(4)))
	assert.False(t, Compare(6, OpLTE, 5))
	assert.True(t, Compare("p1", OpEQ, "p1"))
	assert.False(t, Compare("p1", OpEQ, "p2"))
	assert.True(t, Compare(10, OpGT, 9))
	assert.False(t, Compare(nil, OpLT, 1))
}

func TestFields_Decode(t *testing.T) {
	type line struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	f := Fields{
		"items": []any{
			map[string]any{"productId": "p1", "quantity": int32(2)},
			map[string]any{"productId": "p2", "quantity": 1.0},
		},
	}
	var got []line
	require.NoError(t, f.Decode("items", &got))
	assert.Equal(t, []line{{"p1", 2}, {"p2", 1}}, got)

	var untouched []line
	require.NoError(t, f.Decode("missing", &untouched))
	assert.Nil(t, untouched)
}
