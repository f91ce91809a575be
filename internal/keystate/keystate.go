// Package keystate tracks which key codes are currently held down.
package keystate

import "math/bits"

// Tracker is a 256-bit set, one bit per key code. The zero value is empty.
// It is not safe for concurrent use.
type Tracker struct {
	words [4]uint64
}

// Press marks code as held. It returns false if the key was already held,
// in which case the caller must not re-emit the key-down.
func (t *Tracker) Press(code uint8) bool {
	w, b := code>>6, uint64(1)<<(code&63)
	if t.words[w]&b != 0 {
		return false
	}
	t.words[w] |= b
	return true
}

// Release clears code. Releasing a key that is not held is a no-op.
func (t *Tracker) Release(code uint8) {
	t.words[code>>6] &^= uint64(1) << (code & 63)
}

// Held returns the held key codes in ascending order.
func (t *Tracker) Held() []uint8 {
	var out []uint8
	for i, w := range t.words {
		for w != 0 {
			n := bits.TrailingZeros64(w)
			out = append(out, uint8(i*64+n))
			w &^= uint64(1) << n
		}
	}
	return out
}
