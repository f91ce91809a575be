package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskmirror/internal/compress"
	"deskmirror/internal/input"
	"deskmirror/internal/protocol"
	"deskmirror/internal/types"
)

// frames hands out queued RGB frames, repeating the last one.
type frames struct {
	mu   sync.Mutex
	w, h int
	q    [][]byte
	next func() []byte
}

func (f *frames) Size() (int, int) { return f.w, f.h }

func (f *frames) CaptureInto(ctx context.Context, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next != nil {
		copy(buf, f.next())
		return nil
	}
	copy(buf, f.q[0])
	if len(f.q) > 1 {
		f.q = f.q[1:]
	}
	return nil
}

func (f *frames) CapturePlanarInto(context.Context, []byte) error {
	return errors.New("planar capture not supported")
}

func solid(w, h int, v byte) []byte {
	return bytes.Repeat([]byte{v}, w*h*3)
}

type stepResult struct {
	n   int
	err error
}

func TestFourByFourScenario(t *testing.T) {
	for _, kind := range []compress.Kind{compress.Zstd, compress.Deflate} {
		t.Run(kind.String(), func(t *testing.T) {
			srv, cli := net.Pipe()
			defer srv.Close()
			defer cli.Close()

			a := solid(4, 4, 0x40)
			b := append([]byte(nil), a...)
			b[5*3+1] = 0xc8 // one pixel's green channel
			src := &frames{w: 4, h: 4, q: [][]byte{a, a, b}}

			ticket := protocol.NewTicket("s")
			results := make(chan stepResult, 3)
			gate := make(chan struct{})
			go func() {
				if err := protocol.ServerHandshake(srv, ticket, protocol.Metadata{Width: 4, Height: 4}); err != nil {
					results <- stepResult{err: err}
					return
				}
				s, err := NewSender(src, srv, SenderConfig{Codec: kind})
				if err != nil {
					results <- stepResult{err: err}
					return
				}
				for i := 0; i < 3; i++ {
					if i == 2 {
						<-gate
					}
					n, err := s.Step(context.Background())
					results <- stepResult{n, err}
				}
			}()

			_, err := cli.Write(ticket[:])
			require.NoError(t, err)
			hs := make([]byte, 5)
			_, err = io.ReadFull(cli, hs)
			require.NoError(t, err)
			assert.Equal(t, []byte{protocol.StatusOK, 0, 4, 0, 4}, hs)

			display := NewDisplay(4, 4)
			rc, err := NewReceiver(cli, kind, display, nil)
			require.NoError(t, err)

			// Full first frame.
			require.NoError(t, rc.Step())
			assert.Equal(t, a, display.Snapshot())
			r := <-results
			require.NoError(t, r.err)
			assert.Positive(t, r.n)

			// Identical capture: nothing on the wire.
			r = <-results
			require.NoError(t, r.err)
			assert.Zero(t, r.n)
			require.NoError(t, cli.SetReadDeadline(time.Now().Add(30*time.Millisecond)))
			_, err = cli.Read(make([]byte, 1))
			assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
			require.NoError(t, cli.SetReadDeadline(time.Time{}))

			// One changed pixel: a diff that reproduces the capture.
			close(gate)
			require.NoError(t, rc.Step())
			assert.Equal(t, b, display.Snapshot())
			r = <-results
			require.NoError(t, r.err)
			assert.Positive(t, r.n)
			assert.Equal(t, uint64(2), display.Seq())
		})
	}
}

func TestSenderQuantizes(t *testing.T) {
	var wire bytes.Buffer
	src := &frames{w: 2, h: 1, q: [][]byte{{0xff, 0x07, 0x81, 0x10, 0x0f, 0xf9}}}
	s, err := NewSender(src, &wire, SenderConfig{Codec: compress.Zstd, Mask: 0xf8})
	require.NoError(t, err)
	_, err = s.Step(context.Background())
	require.NoError(t, err)

	display := NewDisplay(2, 1)
	rc, err := NewReceiver(&wire, compress.Zstd, display, nil)
	require.NoError(t, err)
	require.NoError(t, rc.Step())
	assert.Equal(t, []byte{0xf8, 0x00, 0x80, 0x10, 0x08, 0xf8}, display.Snapshot())
}

func TestSenderStreamReconstructs(t *testing.T) {
	const w, h = 16, 9
	rng := rand.New(rand.NewSource(7))
	var want [][]byte
	cur := solid(w, h, 0)
	for i := 0; i < 20; i++ {
		cur = append([]byte(nil), cur...)
		for j := 0; j < 5; j++ {
			cur[rng.Intn(len(cur))] = byte(rng.Intn(256))
		}
		want = append(want, cur)
	}
	src := &frames{w: w, h: h, q: want}

	var wire bytes.Buffer
	stats := new(Stats)
	s, err := NewSender(src, &wire, SenderConfig{Codec: compress.Zstd, Stats: stats})
	require.NoError(t, err)
	for range want {
		_, err := s.Step(context.Background())
		require.NoError(t, err)
	}

	display := NewDisplay(w, h)
	rc, err := NewReceiver(&wire, compress.Zstd, display, nil)
	require.NoError(t, err)
	for i := int64(0); i < stats.Packets.Load(); i++ {
		require.NoError(t, rc.Step())
	}
	assert.Equal(t, want[len(want)-1], display.Snapshot())
	assert.Equal(t, int64(len(want)), stats.Captures.Load())
}

func TestSenderBackpressure(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	src := &frames{w: 64, h: 64, next: func() []byte {
		b := make([]byte, 64*64*3)
		rng.Read(b)
		return b
	}}
	stats := new(Stats)
	s, err := NewSender(src, io.Discard, SenderConfig{
		Codec:         compress.Zstd,
		SkipThreshold: 1024,
		SkipPause:     40 * time.Millisecond,
		Stats:         stats,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, stats.Throttled.Load())
	assert.LessOrEqual(t, stats.Packets.Load(), int64(4))
}

func TestSenderWriteFailureIsTransport(t *testing.T) {
	srv, cli := net.Pipe()
	cli.Close()
	s, err := NewSender(&frames{w: 1, h: 1, q: [][]byte{{1, 2, 3}}}, srv, SenderConfig{Codec: compress.Zstd})
	require.NoError(t, err)
	err = s.Run(context.Background())
	assert.ErrorIs(t, err, types.TransportError)
}

func TestReceiverCorruptPacketIsFatal(t *testing.T) {
	var wire bytes.Buffer
	require.NoError(t, protocol.WritePacket(&wire, []byte("not a zstd frame")))
	rc, err := NewReceiver(&wire, compress.Zstd, NewDisplay(2, 2), nil)
	require.NoError(t, err)
	err = rc.Run(context.Background())
	assert.ErrorIs(t, err, types.CodecError)
	assert.Equal(t, types.CodecError, types.KindOf(err))
}

func TestReceiverEOF(t *testing.T) {
	rc, err := NewReceiver(bytes.NewReader(nil), compress.Zstd, NewDisplay(2, 2), nil)
	require.NoError(t, err)
	err = rc.Run(context.Background())
	assert.ErrorIs(t, err, types.TransportError)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDisplayReadersSeeWholeFrames(t *testing.T) {
	d := NewDisplay(64, 64)
	a := solid(64, 64, 0x11)
	diff := make([]byte, len(a))
	for i := range diff {
		diff[i] = 0x11 ^ 0x22
	}
	require.NoError(t, d.Load(a))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			assert.NoError(t, d.Apply(diff))
		}
	}()
	for i := 0; i < 200; i++ {
		d.View(func(pix []byte, w, h int) {
			first := pix[0]
			assert.True(t, first == 0x11 || first == 0x22)
			assert.Equal(t, -1, bytes.IndexFunc(pix, func(r rune) bool { return byte(r) != first }))
		})
	}
	cancel()
	wg.Wait()
}

func TestDisplayRejectsWrongSize(t *testing.T) {
	d := NewDisplay(2, 2)
	assert.Error(t, d.Load(make([]byte, 3)))
	assert.Error(t, d.Apply(make([]byte, 13)))
	assert.Zero(t, d.Seq())
}

func TestDisplayImage(t *testing.T) {
	d := NewDisplay(1, 2)
	require.NoError(t, d.Load([]byte{1, 2, 3, 4, 5, 6}))
	img := d.Image()
	assert.Equal(t, []byte{1, 2, 3, 0xff, 4, 5, 6, 0xff}, img.Pix)
}

func TestRenderLoop(t *testing.T) {
	d := NewDisplay(1, 1)
	got := make(chan []byte, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RenderLoop(ctx, d, types.RendererFunc(func(pix []byte, w, h int) {
		got <- append([]byte(nil), pix...)
	}))

	require.NoError(t, d.Load([]byte{9, 8, 7}))
	select {
	case p := <-got:
		assert.Equal(t, []byte{9, 8, 7}, p)
	case <-time.After(time.Second):
		t.Fatal("renderer not called")
	}
}

func TestRelay(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()

	stats := new(Stats)
	r := NewRelay(cli, stats)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.Push(input.Command{Op: input.KeyDown, Code: 65})
	r.Push(input.Command{Op: input.KeyDown, Code: 65})
	r.Push(input.Command{Op: input.KeyUp, Code: 65})
	r.Push(input.Command{Op: input.Move, X: 1, Y: 2})

	got := make([]byte, 9)
	_, err := io.ReadFull(srv, got)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 65, 1, 65, 7, 0, 1, 0, 2}, got)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, int64(3), stats.Commands.Load())
	assert.Equal(t, int64(1), stats.Suppressed.Load())
	assert.Empty(t, r.Held())

	r.Push(input.Command{Op: input.WheelUp})
	assert.Zero(t, r.Pending(), "push after shutdown is dropped")
}

type recorder struct {
	mu    sync.Mutex
	calls []input.Command
}

func (r *recorder) add(c input.Command) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

func (r *recorder) KeyDown(c uint8)         { r.add(input.Command{Op: input.KeyDown, Code: c}) }
func (r *recorder) KeyUp(c uint8)           { r.add(input.Command{Op: input.KeyUp, Code: c}) }
func (r *recorder) MouseButtonDown(b uint8) { r.add(input.Command{Op: input.MouseButtonDown, Code: b}) }
func (r *recorder) MouseButtonUp(b uint8)   { r.add(input.Command{Op: input.MouseButtonUp, Code: b}) }
func (r *recorder) MoveTo(x, y int)         { r.add(input.Command{Op: input.Move, X: uint16(x), Y: uint16(y)}) }
func (r *recorder) Close()                  {}

func (r *recorder) Scroll(dy int) {
	if dy < 0 {
		r.add(input.Command{Op: input.WheelUp})
	} else {
		r.add(input.Command{Op: input.WheelDown})
	}
}

func TestInjectLoop(t *testing.T) {
	wire := []byte{2, 65, 4, 0, 6, 7, 0, 10, 0, 20, 3, 0, 1, 65}
	var rec recorder
	stats := new(Stats)
	err := InjectLoop(context.Background(), bytes.NewReader(wire), &rec, stats)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []input.Command{
		{Op: input.KeyDown, Code: 65},
		{Op: input.MouseButtonDown, Code: 0},
		{Op: input.WheelDown},
		{Op: input.Move, X: 10, Y: 20},
		{Op: input.MouseButtonUp, Code: 0},
		{Op: input.KeyUp, Code: 65},
	}, rec.calls)
	assert.Equal(t, int64(6), stats.Commands.Load())
}

func TestInjectLoopUnknownOpcode(t *testing.T) {
	var rec recorder
	err := InjectLoop(context.Background(), bytes.NewReader([]byte{5, 42, 1}), &rec, nil)
	assert.ErrorIs(t, err, types.ProtocolViolation)
	assert.Len(t, rec.calls, 1)
}
