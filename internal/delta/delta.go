// Package delta implements the XOR frame differencing used on the wire:
// a diff is previous^current, and applying it to the previously displayed
// frame yields the current one. This only holds if every diff is applied
// exactly once and in order.
package delta

import (
	"bytes"
	"runtime"
	"sync"
)

// DefaultMask keeps the top five bits of every channel byte.
const DefaultMask byte = 0b1111_1000

// parallelMin is the buffer size above which XOR is split across CPUs.
const parallelMin = 1 << 20

// Encode writes previous^current into diff and reports whether the frames
// differ. When they are equal nothing is written and the caller must not
// transmit anything. diff may alias previous. All three must have equal
// length.
func Encode(diff, current, previous []byte) bool {
	if bytes.Equal(current, previous) {
		return false
	}
	xor(diff, previous, current)
	return true
}

// Decode applies diff to displayed in place.
func Decode(displayed, diff []byte) {
	xor(displayed, displayed, diff)
}

// Quantize masks every byte of buf with mask, discarding low colour bits so
// diffs compress better. This is lossy and cannot be undone.
func Quantize(buf []byte, mask byte) {
	if mask == 0xff {
		return
	}
	for i := range buf {
		buf[i] &= mask
	}
}

func xor(dst, a, b []byte) {
	n := len(dst)
	if n < parallelMin {
		xorRange(dst, a, b)
		return
	}
	workers := runtime.GOMAXPROCS(0)
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for off := 0; off < n; off += chunk {
		end := min(off+chunk, n)
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			xorRange(dst[lo:hi], a[lo:hi], b[lo:hi])
		}(off, end)
	}
	wg.Wait()
}

func xorRange(dst, a, b []byte) {
	if len(dst) == 0 {
		return
	}
	_ = a[len(dst)-1]
	_ = b[len(dst)-1]
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}
