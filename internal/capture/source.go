// Package capture owns the screen-capture backend for one session and turns
// its frames into packed RGB. Transient backend failures are retried here
// and never reach the stream pump.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"deskmirror/internal/colorconv"
	"deskmirror/internal/types"
)

// ErrNoFrame is returned by a backend's Grab when no new frame is ready
// yet. Source retries it after a short sleep.
var ErrNoFrame = errors.New("capture: no new frame")

// ErrSizeChanged means the backend came back from a reinit with different
// dimensions; the session must be renegotiated.
var ErrSizeChanged = errors.New("capture: display size changed")

// Factory opens a capture backend.
type Factory func() (types.MediaCapturer, error)

// Observer receives capture events; used for metrics. Both fields are optional.
type Observer struct {
	GrabFailed func()
	Reinit     func()
}

// Options tunes the retry policy.
type Options struct {
	// PollInterval is the sleep between attempts when no frame is ready.
	PollInterval time.Duration
	// MinBackoff and MaxBackoff bound the delay between reinit attempts.
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Observer   Observer
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second / 60
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = 50 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 2 * time.Second
	}
}

// Source is the per-session frame source. It is not safe for concurrent
// CaptureInto calls; Snapshot is serialized with them.
type Source struct {
	open   Factory
	opts   Options
	mu     sync.Mutex
	cap    types.MediaCapturer
	width  int
	height int
	closed bool
}

// Open creates the backend once to learn the display size.
func Open(ctx context.Context, open Factory, opts Options) (*Source, error) {
	opts.defaults()
	s := &Source{open: open, opts: opts}
	c, err := s.reopen(ctx)
	if err != nil {
		return nil, err
	}
	s.width, s.height = c.Width(), c.Height()
	if s.width <= 0 || s.height <= 0 || s.width > 0xffff || s.height > 0xffff {
		c.Close()
		return nil, fmt.Errorf("capture: unsupported display size %dx%d", s.width, s.height)
	}
	s.cap = c
	log.Printf("capture: source %dx%d", s.width, s.height)
	return s, nil
}

// Size returns the display dimensions fixed at Open.
func (s *Source) Size() (int, int) { return s.width, s.height }

// FrameSize is the packed RGB length of one frame.
func (s *Source) FrameSize() int { return s.width * s.height * 3 }

// CaptureInto fills buf (FrameSize bytes) with the next frame as packed RGB,
// blocking until one is available or ctx is done.
func (s *Source) CaptureInto(ctx context.Context, buf []byte) error {
	return s.capture(ctx, func(f *types.Frame) error {
		_, err := colorconv.Pack(buf[:0:len(buf)], f.Data, f.Width, f.Height, f.Stride, colorconv.LayoutOf(f.PixFmt))
		return err
	})
}

// CapturePlanarInto fills buf with the next frame as contiguous I420.
func (s *Source) CapturePlanarInto(ctx context.Context, buf []byte) error {
	return s.capture(ctx, func(f *types.Frame) error {
		_, err := colorconv.ToPlanar(buf[:0:len(buf)], f.Data, f.Width, f.Height, f.Stride, colorconv.LayoutOf(f.PixFmt))
		return err
	})
}

func (s *Source) capture(ctx context.Context, convert func(*types.Frame) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// backoff paces reinits after grab failures on a backend that reopens
	// fine; reopen only backs off when the factory itself fails.
	var backoff time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.closed {
			return errors.New("capture: source closed")
		}
		if s.cap == nil {
			if backoff > 0 {
				if err := sleep(ctx, backoff); err != nil {
					return err
				}
			}
			c, err := s.reopen(ctx)
			if err != nil {
				return err
			}
			if c.Width() != s.width || c.Height() != s.height {
				c.Close()
				return fmt.Errorf("%w: %dx%d -> %dx%d", ErrSizeChanged, s.width, s.height, c.Width(), c.Height())
			}
			if s.opts.Observer.Reinit != nil {
				s.opts.Observer.Reinit()
			}
			s.cap = c
		}

		f, err := s.cap.Grab()
		if errors.Is(err, ErrNoFrame) {
			if err := sleep(ctx, s.opts.PollInterval); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			if s.opts.Observer.GrabFailed != nil {
				s.opts.Observer.GrabFailed()
			}
			if backoff == 0 {
				log.Printf("capture: grab failed, reinitializing: %v", err)
			}
			s.cap.Close()
			s.cap = nil
			backoff = s.nextBackoff(backoff)
			continue
		}
		if f.Width != s.width || f.Height != s.height {
			return fmt.Errorf("%w: frame %dx%d", ErrSizeChanged, f.Width, f.Height)
		}
		return convert(f)
	}
}

func (s *Source) nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return s.opts.MinBackoff
	}
	return min(d*2, s.opts.MaxBackoff)
}

// reopen calls the factory until it succeeds, backing off exponentially.
func (s *Source) reopen(ctx context.Context) (types.MediaCapturer, error) {
	delay := s.opts.MinBackoff
	for attempt := 1; ; attempt++ {
		c, err := s.open()
		if err == nil {
			return c, nil
		}
		if attempt == 1 || attempt%10 == 0 {
			log.Printf("capture: open failed (attempt %d): %v", attempt, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay = min(delay*2, s.opts.MaxBackoff)
	}
}

// Snapshot returns the current screen as an image for the debug endpoint.
func (s *Source) Snapshot() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cap == nil {
		return nil, errors.New("capture: backend not open")
	}
	f, err := s.cap.Grab()
	if err != nil {
		return nil, err
	}
	l := colorconv.LayoutOf(f.PixFmt)
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		row := f.Data[y*f.Stride:]
		out := img.Pix[y*img.Stride:]
		for x := 0; x < f.Width; x++ {
			o := x * l.BytesPerPixel
			out[x*4] = row[o+l.R]
			out[x*4+1] = row[o+l.G]
			out[x*4+2] = row[o+l.B]
			out[x*4+3] = 0xff
		}
	}
	return img, nil
}

// Close releases the backend. Safe to call more than once.
func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.cap != nil {
		s.cap.Close()
		s.cap = nil
	}
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
