package inject

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeysym(t *testing.T) {
	tests := []struct {
		vk   uint8
		want uint32
	}{
		{'A', 'a'},
		{'Z', 'z'},
		{'0', '0'},
		{'9', '9'},
		{13, xkReturn},
		{27, xkEscape},
		{112, xkF1},
		{123, xkF1 + 11},
		{161, xkShiftR},
		{192, '`'},
		{220, '\\'},
		{32, ' '},
		{0, 0},
		{255, 0},
		{124, 0},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Keysym(tc.vk), "vk %d", tc.vk)
	}
}

func TestX11Button(t *testing.T) {
	for b, want := range map[uint8]int{0: 1, 1: 2, 2: 3} {
		got, ok := x11Button(b)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := x11Button(3)
	assert.False(t, ok)
}
