package keystate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPressRelease(t *testing.T) {
	var tr Tracker
	for _, k := range []uint8{0, 10, 63, 64, 127, 128, 168, 255} {
		assert.True(t, tr.Press(k), "first press of %d", k)
	}
	for _, k := range []uint8{0, 10, 63, 64, 127, 128, 168, 255} {
		assert.False(t, tr.Press(k), "repeat press of %d", k)
	}

	tr.Release(10)
	tr.Release(168)
	assert.Equal(t, []uint8{0, 63, 64, 127, 128, 255}, tr.Held())
	assert.True(t, tr.Press(10))
	assert.True(t, tr.Press(168))
	assert.Len(t, tr.Held(), 8)
}

func TestReleaseUnheldIsNoop(t *testing.T) {
	var tr Tracker
	tr.Release(65)
	assert.Empty(t, tr.Held())
	assert.True(t, tr.Press(65))
}

func TestHeld(t *testing.T) {
	var tr Tracker
	tr.Press(200)
	tr.Press(3)
	tr.Press(64)
	assert.Equal(t, []uint8{3, 64, 200}, tr.Held())

	tr.Release(64)
	assert.Equal(t, []uint8{3, 200}, tr.Held())
}
