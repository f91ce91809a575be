package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

type flateEncoder struct {
	w   *flate.Writer
	buf bytes.Buffer
	pkt [][]byte
}

func newFlateEncoder(o Options) (*flateEncoder, error) {
	level := o.Level
	if level == 0 {
		level = Deflate.DefaultLevel()
	}
	e := &flateEncoder{pkt: make([][]byte, 1)}
	w, err := flate.NewWriter(&e.buf, level)
	if err != nil {
		return nil, fmt.Errorf("deflate encoder: %w", err)
	}
	e.w = w
	return e, nil
}

func (e *flateEncoder) Encode(frame []byte) ([][]byte, error) {
	e.buf.Reset()
	e.w.Reset(&e.buf)
	if _, err := e.w.Write(frame); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if err := e.w.Close(); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	e.pkt[0] = e.buf.Bytes()
	return e.pkt, nil
}

func (e *flateEncoder) Close() error { return nil }

type flateDecoder struct {
	r    io.ReadCloser
	src  bytes.Reader
	size int
	out  []byte
}

func newFlateDecoder(o Options) (*flateDecoder, error) {
	d := &flateDecoder{size: o.FrameSize()}
	d.out = make([]byte, d.size)
	d.r = flate.NewReader(&d.src)
	return d, nil
}

func (d *flateDecoder) Decode(packet []byte) ([]byte, error) {
	d.src.Reset(packet)
	if err := d.r.(flate.Resetter).Reset(&d.src, nil); err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	if _, err := io.ReadFull(d.r, d.out); err != nil {
		return nil, fmt.Errorf("inflate: short frame: %w", err)
	}
	var extra [1]byte
	if n, _ := d.r.Read(extra[:]); n != 0 {
		return nil, fmt.Errorf("inflate: frame longer than %d bytes", d.size)
	}
	return d.out, nil
}

func (d *flateDecoder) Close() error { return d.r.Close() }
