package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"deskmirror/internal/colorconv"
	"deskmirror/internal/compress"
	"deskmirror/internal/delta"
	"deskmirror/internal/protocol"
	"deskmirror/internal/types"
)

// Defaults for the sender's pacing.
const (
	DefaultFPS           = 20
	DefaultSkipThreshold = 5 * 1024
	DefaultSkipPause     = 100 * time.Millisecond
)

// FrameSource is what the sender captures from; capture.Source implements
// it.
type FrameSource interface {
	Size() (width, height int)
	// CaptureInto fills buf with packed RGB.
	CaptureInto(ctx context.Context, buf []byte) error
	// CapturePlanarInto fills buf with contiguous I420.
	CapturePlanarInto(ctx context.Context, buf []byte) error
}

// SenderConfig tunes the source's frame pump.
type SenderConfig struct {
	Codec compress.Kind
	Level int // 0 selects the codec default
	// FPS caps the capture rate. 0 captures back to back.
	FPS int
	// Mask is ANDed into every captured byte before diffing. 0 or 0xff
	// disables quantization.
	Mask byte
	// After a payload larger than SkipThreshold the sender pauses for
	// SkipPause. A zero SkipPause disables the pause.
	SkipThreshold int
	SkipPause     time.Duration
	Stats         *Stats
}

// Sender captures, diffs, compresses and writes frame packets.
type Sender struct {
	src   FrameSource
	w     io.Writer
	cfg   SenderConfig
	enc   compress.Encoder
	bufs  *delta.PingPong
	plane []byte
	first bool
}

// NewSender builds the sender for one session. The caller must have
// completed the handshake on w.
func NewSender(src FrameSource, w io.Writer, cfg SenderConfig) (*Sender, error) {
	if cfg.Stats == nil {
		cfg.Stats = new(Stats)
	}
	if cfg.Level == 0 {
		cfg.Level = cfg.Codec.DefaultLevel()
	}
	width, height := src.Size()
	enc, err := compress.NewEncoder(compress.Options{
		Kind:   cfg.Codec,
		Level:  cfg.Level,
		Width:  width,
		Height: height,
		FPS:    max(cfg.FPS, 1),
	})
	if err != nil {
		return nil, types.Errorf(types.CodecError, "new encoder", err)
	}
	s := &Sender{src: src, w: w, cfg: cfg, enc: enc, first: true}
	if cfg.Codec.Differential() {
		s.bufs = delta.NewPingPong(width * height * 3)
	} else {
		s.plane = make([]byte, colorconv.PlanarSize(width, height))
	}
	return s, nil
}

// Run sends frames until ctx is done or a fatal error occurs. It closes
// the encoder on return.
func (s *Sender) Run(ctx context.Context) error {
	defer s.enc.Close()

	var tick <-chan time.Time
	if s.cfg.FPS > 0 {
		t := time.NewTicker(time.Second / time.Duration(s.cfg.FPS))
		defer t.Stop()
		tick = t.C
	}
	for {
		n, err := s.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if s.cfg.SkipPause > 0 && n > s.cfg.SkipThreshold {
			s.cfg.Stats.Throttled.Add(1)
			if err := sleep(ctx, s.cfg.SkipPause); err != nil {
				return err
			}
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
	}
}

// Step captures one frame and writes whatever it produces. It returns the
// largest payload written, 0 when the capture was unchanged.
func (s *Sender) Step(ctx context.Context) (int, error) {
	if s.bufs == nil {
		return s.stepVideo(ctx)
	}

	work := s.bufs.Work.Bytes()
	if err := s.src.CaptureInto(ctx, work); err != nil {
		return 0, captureErr(err)
	}
	s.cfg.Stats.Captures.Add(1)
	if s.cfg.Mask != 0 {
		delta.Quantize(work, s.cfg.Mask)
	}

	if s.first {
		// Keyframe: the raw frame, then it becomes the reference.
		n, err := s.send(work)
		if err != nil {
			return 0, err
		}
		s.bufs.Swap()
		s.first = false
		return n, nil
	}
	if !s.bufs.Diff() {
		s.cfg.Stats.Unchanged.Add(1)
		return 0, nil
	}
	return s.send(s.bufs.Work.Bytes())
}

func (s *Sender) stepVideo(ctx context.Context) (int, error) {
	if err := s.src.CapturePlanarInto(ctx, s.plane); err != nil {
		return 0, captureErr(err)
	}
	s.cfg.Stats.Captures.Add(1)
	return s.send(s.plane)
}

// send compresses frame and writes every packet the encoder emits, in
// order.
func (s *Sender) send(frame []byte) (int, error) {
	pkts, err := s.enc.Encode(frame)
	if err != nil {
		return 0, types.Errorf(types.CodecError, "encode frame", err)
	}
	largest := 0
	for _, p := range pkts {
		if err := protocol.WritePacket(s.w, p); err != nil {
			return 0, err
		}
		s.cfg.Stats.Packets.Add(1)
		s.cfg.Stats.Bytes.Add(int64(len(p)))
		largest = max(largest, len(p))
	}
	return largest, nil
}

func captureErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("stream: capture: %w", err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
