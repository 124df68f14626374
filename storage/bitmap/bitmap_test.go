package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name     string
		slot     int
		expected address
	}{
		{
			name:     "slot 0",
			slot:     0,
			expected: address{byteOffset: 0, bitOffset: 0},
		},
		{
			name:     "slot 7",
			slot:     7,
			expected: address{byteOffset: 0, bitOffset: 7},
		},
		{
			name:     "slot 8",
			slot:     8,
			expected: address{byteOffset: 1, bitOffset: 0},
		},
		{
			name:     "slot 29",
			slot:     29,
			expected: address{byteOffset: 3, bitOffset: 5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, getAddress(tt.slot))
		})
	}
}

func TestSetClear(t *testing.T) {
	b := New(30)
	assert.Len(t, b, 4)

	b.Set(0)
	b.Set(9)
	assert.Equal(t, byte(0x80), b[0])
	assert.Equal(t, byte(0x40), b[1])
	assert.True(t, b.IsSet(0))
	assert.True(t, b.IsSet(9))
	assert.False(t, b.IsSet(1))
	assert.Equal(t, 2, b.Count(30))

	// setting twice doesn't change anything
	b.Set(9)
	assert.Equal(t, 2, b.Count(30))

	b.Clear(0)
	assert.False(t, b.IsSet(0))
	assert.True(t, b.IsSet(9))
	assert.Equal(t, 1, b.Count(30))

	b.Reset()
	assert.Equal(t, 0, b.Count(30))
}

func TestFindClear(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		used     []int
		expected int
		found    bool
	}{
		{
			name:     "empty",
			n:        30,
			expected: 0,
			found:    true,
		},
		{
			name:     "first bytes full",
			n:        30,
			used:     rangeSlots(0, 17),
			expected: 17,
			found:    true,
		},
		{
			name:     "hole in the middle",
			n:        30,
			used:     []int{0, 1, 2, 4},
			expected: 3,
			found:    true,
		},
		{
			name:  "full",
			n:     30,
			used:  rangeSlots(0, 30),
			found: false,
		},
		{
			name:  "unused bits beyond n are not slots",
			n:     3,
			used:  []int{0, 1, 2},
			found: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.n)
			for _, i := range tt.used {
				b.Set(i)
			}
			got, ok := b.FindClear(tt.n)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

func TestCountIgnoresBitsBeyondN(t *testing.T) {
	b := New(3)
	b[0] = 0xff
	assert.Equal(t, 3, b.Count(3))
	assert.Equal(t, 8, b.Count(8))
}

func rangeSlots(from, to int) []int {
	var s []int
	for i := from; i < to; i++ {
		s = append(s, i)
	}
	return s
}
