package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToInt64(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected int64
		ok       bool
	}{
		{name: "int64", input: int64(42), expected: 42, ok: true},
		{name: "int", input: int(100), expected: 100, ok: true},
		{name: "int32", input: int32(200), expected: 200, ok: true},
		{name: "int16", input: int16(300), expected: 300, ok: true},
		{name: "int8", input: int8(127), expected: 127, ok: true},
		{name: "uint", input: uint(500), expected: 500, ok: true},
		{name: "uint64", input: uint64(1000), expected: 1000, ok: true},
		{name: "uint8", input: uint8(255), expected: 255, ok: true},
		{name: "float64 truncates", input: float64(3.9), expected: 3, ok: true},
		{name: "numeric string", input: "2251799813685249", expected: 2251799813685249, ok: true},
		{name: "numeric bytes", input: []byte("17"), expected: 17, ok: true},
		{name: "non numeric string", input: "abc", expected: 0, ok: false},
		{name: "nil", input: nil, expected: 0, ok: false},
		{name: "bool", input: true, expected: 0, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToInt64(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestMillisRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 30, 45, 123000000, time.UTC)

	ms := TimeToMillis(ts)
	assert.Equal(t, int64(1710498645123), ms)
	assert.True(t, ts.Equal(MillisToTime(ms)))
}

func TestMillisToTime_DropsSubMillisecond(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 30, 45, 123456789, time.UTC)

	back := MillisToTime(TimeToMillis(ts))
	assert.Equal(t, 123000000, back.Nanosecond())
}
