package capture

import (
	"time"

	"deskmirror/internal/types"
)

// Synthetic renders a test pattern: a gradient background with a bar that
// sweeps across once per Period. A zero Period yields a static image. It
// needs no display server.
type Synthetic struct {
	width, height int
	period        time.Duration
	start         time.Time
	buf           []byte
}

func NewSynthetic(width, height int, period time.Duration) *Synthetic {
	s := &Synthetic{
		width:  width,
		height: height,
		period: period,
		start:  time.Now(),
		buf:    make([]byte, width*height*4),
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			o := (y*width + x) * 4
			s.buf[o] = byte(x * 255 / max(1, width-1))
			s.buf[o+1] = byte(y * 255 / max(1, height-1))
			s.buf[o+2] = 0x40
			s.buf[o+3] = 0xff
		}
	}
	return s
}

// SyntheticFactory returns a Factory producing Synthetic capturers.
func SyntheticFactory(width, height int, period time.Duration) Factory {
	return func() (types.MediaCapturer, error) {
		return NewSynthetic(width, height, period), nil
	}
}

func (s *Synthetic) Width() int  { return s.width }
func (s *Synthetic) Height() int { return s.height }

func (s *Synthetic) Grab() (*types.Frame, error) {
	data := s.buf
	if s.period > 0 {
		data = append([]byte(nil), s.buf...)
		bw := max(1, s.width/16)
		phase := time.Since(s.start) % s.period
		x0 := int(int64(s.width) * int64(phase) / int64(s.period))
		for y := 0; y < s.height; y++ {
			for x := x0; x < min(s.width, x0+bw); x++ {
				o := (y*s.width + x) * 4
				data[o], data[o+1], data[o+2] = 0xff, 0xff, 0xff
			}
		}
	}
	return &types.Frame{
		Data:   data,
		Width:  s.width,
		Height: s.height,
		Stride: s.width * 4,
		PixFmt: types.PixFmtBGRA,
	}, nil
}

func (s *Synthetic) Close() {}
