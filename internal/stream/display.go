package stream

import (
	"fmt"
	"image"
	"sync"

	"deskmirror/internal/delta"
)

// Display is the viewer's reconstructed frame. The receiver writes it under
// the exclusive lock; renderers read it under the shared lock, so a reader
// never sees a partially applied diff.
type Display struct {
	mu     sync.RWMutex
	pix    []byte
	width  int
	height int
	seq    uint64
	notify chan struct{}
}

// NewDisplay returns a black width x height packed RGB display.
func NewDisplay(width, height int) *Display {
	return &Display{
		pix:    make([]byte, width*height*3),
		width:  width,
		height: height,
		notify: make(chan struct{}, 1),
	}
}

func (d *Display) Size() (int, int) { return d.width, d.height }

// Load replaces the display with a full frame.
func (d *Display) Load(frame []byte) error {
	if len(frame) != len(d.pix) {
		return fmt.Errorf("stream: frame is %d bytes, display is %d", len(frame), len(d.pix))
	}
	d.mu.Lock()
	copy(d.pix, frame)
	d.seq++
	d.mu.Unlock()
	d.signal()
	return nil
}

// Apply XORs diff into the display.
func (d *Display) Apply(diff []byte) error {
	if len(diff) != len(d.pix) {
		return fmt.Errorf("stream: diff is %d bytes, display is %d", len(diff), len(d.pix))
	}
	d.mu.Lock()
	delta.Decode(d.pix, diff)
	d.seq++
	d.mu.Unlock()
	d.signal()
	return nil
}

func (d *Display) signal() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Updated delivers at most one pending notification; bursts of updates
// coalesce into one.
func (d *Display) Updated() <-chan struct{} { return d.notify }

// View calls fn with the current pixels under the shared lock. fn must not
// retain pix.
func (d *Display) View(fn func(pix []byte, width, height int)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(d.pix, d.width, d.height)
}

// Seq counts updates applied so far.
func (d *Display) Seq() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.seq
}

// Snapshot returns a copy of the current pixels.
func (d *Display) Snapshot() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]byte(nil), d.pix...)
}

// Image returns the current frame as an RGBA image.
func (d *Display) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	d.View(func(pix []byte, w, h int) {
		for i, j := 0, 0; i < len(pix); i, j = i+3, j+4 {
			img.Pix[j] = pix[i]
			img.Pix[j+1] = pix[i+1]
			img.Pix[j+2] = pix[i+2]
			img.Pix[j+3] = 0xff
		}
	})
	return img
}
