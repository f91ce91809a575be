package delta

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

func TestDecodeOfEncodeRestoresCurrent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{1, 3, 48, 4096, parallelMin + 17} {
		a := randBytes(rng, n)
		b := randBytes(rng, n)
		b[0] = a[0] ^ 0x5a

		diff := make([]byte, n)
		require.True(t, Encode(diff, b, a))

		displayed := append([]byte(nil), a...)
		Decode(displayed, diff)
		assert.True(t, bytes.Equal(b, displayed), "size %d", n)
	}
}

func TestEncodeIdenticalSignalsNoChange(t *testing.T) {
	a := []byte{1, 2, 3, 4}
	diff := []byte{9, 9, 9, 9}
	assert.False(t, Encode(diff, a, append([]byte(nil), a...)))
	assert.Equal(t, []byte{9, 9, 9, 9}, diff, "diff must be untouched")
}

func TestEncodeInPlace(t *testing.T) {
	prev := []byte{0xff, 0x00, 0x0f}
	cur := []byte{0xff, 0x01, 0xf0}
	require.True(t, Encode(prev, cur, prev))
	assert.Equal(t, []byte{0x00, 0x01, 0xff}, prev)
}

func TestQuantize(t *testing.T) {
	b := []byte{0xff, 0x07, 0x08, 0x81}
	Quantize(b, DefaultMask)
	assert.Equal(t, []byte{0xf8, 0x00, 0x08, 0x80}, b)

	c := []byte{0x01}
	Quantize(c, 0xff)
	assert.Equal(t, []byte{0x01}, c)
}

func TestPingPongSequence(t *testing.T) {
	frames := [][]byte{
		{1, 1, 1, 1},
		{1, 1, 1, 1},
		{1, 2, 1, 1},
		{5, 2, 1, 0},
	}

	pp := NewPingPong(4)
	copy(pp.Prev.Bytes(), frames[0])
	displayed := append([]byte(nil), frames[0]...)

	sent := 0
	for _, f := range frames[1:] {
		copy(pp.Work.Bytes(), f)
		if !pp.Diff() {
			continue
		}
		sent++
		Decode(displayed, pp.Work.Bytes())
		assert.Equal(t, f, displayed)
		assert.Equal(t, f, pp.Prev.Bytes())
	}
	assert.Equal(t, 2, sent)
}
