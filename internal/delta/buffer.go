package delta

// Buffer is one frame-sized byte buffer of a PingPong.
type Buffer struct {
	b []byte
}

// NewBuffer returns a buffer of length n, zero filled.
func NewBuffer(n int) *Buffer {
	return &Buffer{b: make([]byte, n)}
}

func (b *Buffer) Bytes() []byte { return b.b }

// PingPong holds the two frame buffers of one direction. Prev is the frame
// last sent (or displayed); Work receives the next capture. Swap exchanges
// ownership without copying.
type PingPong struct {
	Prev *Buffer
	Work *Buffer
}

func NewPingPong(n int) *PingPong {
	return &PingPong{Prev: NewBuffer(n), Work: NewBuffer(n)}
}

func (p *PingPong) Swap() { p.Prev, p.Work = p.Work, p.Prev }

// Diff turns Prev into the XOR diff against Work and then swaps, so that
// Prev holds the new frame and Work holds the diff. It reports false, and
// leaves both buffers untouched, when the frames are identical.
func (p *PingPong) Diff() bool {
	if !Encode(p.Prev.b, p.Work.b, p.Prev.b) {
		return false
	}
	p.Swap()
	return true
}
