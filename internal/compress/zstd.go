package compress

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

type zstdEncoder struct {
	enc *zstd.Encoder
	out []byte
	pkt [][]byte
}

func newZstdEncoder(o Options) (*zstdEncoder, error) {
	level := o.Level
	if level == 0 {
		level = Zstd.DefaultLevel()
	}
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return &zstdEncoder{enc: enc, pkt: make([][]byte, 1)}, nil
}

func (e *zstdEncoder) Encode(frame []byte) ([][]byte, error) {
	e.out = e.enc.EncodeAll(frame, e.out[:0])
	e.pkt[0] = e.out
	return e.pkt, nil
}

func (e *zstdEncoder) Close() error { return e.enc.Close() }

type zstdDecoder struct {
	dec  *zstd.Decoder
	size int
	out  []byte
}

func newZstdDecoder(o Options) (*zstdDecoder, error) {
	size := o.FrameSize()
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(uint64(size)+1<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &zstdDecoder{dec: dec, size: size, out: make([]byte, 0, size)}, nil
}

func (d *zstdDecoder) Decode(packet []byte) ([]byte, error) {
	out, err := d.dec.DecodeAll(packet, d.out[:0])
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	if len(out) != d.size {
		return nil, fmt.Errorf("zstd decode: got %d bytes, want %d", len(out), d.size)
	}
	d.out = out
	return out, nil
}

func (d *zstdDecoder) Close() error {
	d.dec.Close()
	return nil
}
