package viewer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskmirror/internal/capture"
	"deskmirror/internal/compress"
	"deskmirror/internal/input"
	"deskmirror/internal/metrics"
	"deskmirror/internal/protocol"
	"deskmirror/internal/server"
	"deskmirror/internal/stream"
	"deskmirror/internal/transport"
	"deskmirror/internal/types"
)

type recorder struct {
	mu   sync.Mutex
	cmds []string
}

func (r *recorder) add(s string) { r.mu.Lock(); r.cmds = append(r.cmds, s); r.mu.Unlock() }

func (r *recorder) KeyDown(c uint8)         { r.add(input.Command{Op: input.KeyDown, Code: c}.String()) }
func (r *recorder) KeyUp(c uint8)           { r.add(input.Command{Op: input.KeyUp, Code: c}.String()) }
func (r *recorder) MouseButtonDown(b uint8) { r.add(input.Command{Op: input.MouseButtonDown, Code: b}.String()) }
func (r *recorder) MouseButtonUp(b uint8)   { r.add(input.Command{Op: input.MouseButtonUp, Code: b}.String()) }
func (r *recorder) Scroll(int)              { r.add("scroll") }
func (r *recorder) MoveTo(x, y int) {
	r.add(input.Command{Op: input.Move, X: uint16(x), Y: uint16(y)}.String())
}
func (r *recorder) Close() {}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cmds)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.cmds...)
}

const secret = "correct horse"

func startSource(t *testing.T, codec compress.Kind, inj *recorder) string {
	t.Helper()
	srv, err := server.New(server.Config{
		Listen:      "127.0.0.1:0",
		Transport:   transport.TCP,
		Secret:      secret,
		Stream:      stream.SenderConfig{Codec: codec, FPS: 50},
		NewCapturer: capture.SyntheticFactory(16, 8, 0),
		InputFactory: func() (types.Injector, error) {
			return inj, nil
		},
		Gatherer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	addr, err := srv.Listen()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(cancel)
	return addr.String()
}

func expectedFrame(t *testing.T) []byte {
	t.Helper()
	src, err := capture.Open(context.Background(), capture.SyntheticFactory(16, 8, 0), capture.Options{})
	require.NoError(t, err)
	defer src.Close()
	buf := make([]byte, src.FrameSize())
	require.NoError(t, src.CaptureInto(context.Background(), buf))
	return buf
}

func TestViewerMirrorsSource(t *testing.T) {
	for _, codec := range []compress.Kind{compress.Zstd, compress.Deflate} {
		t.Run(codec.String(), func(t *testing.T) {
			inj := &recorder{}
			addr := startSource(t, codec, inj)

			reg := prometheus.NewRegistry()
			v, err := Dial(context.Background(), Config{
				Addr:      addr,
				Transport: transport.TCP,
				Secret:    secret,
				Codec:     codec,
				Metrics:   metrics.New(metrics.WithRegistry(reg)),
			})
			require.NoError(t, err)
			w, h := v.Size()
			assert.Equal(t, 16, w)
			assert.Equal(t, 8, h)

			done := make(chan error, 1)
			go func() { done <- v.Run(context.Background()) }()

			require.Eventually(t, func() bool { return v.Display().Seq() > 0 }, 2*time.Second, 5*time.Millisecond)
			assert.Equal(t, expectedFrame(t), v.Display().Snapshot())

			// Not hooked yet: dropped.
			v.HandleEvent(input.UIEvent{Type: input.EventKeyDown, Code: 65})
			v.HandleEvent(input.UIEvent{Type: input.EventEnter})
			v.HandleEvent(input.UIEvent{Type: input.EventKeyDown, Code: 66})
			v.HandleEvent(input.UIEvent{Type: input.EventKeyDown, Code: 66})
			v.HandleEvent(input.UIEvent{Type: input.EventKeyUp, Code: 66})
			v.HandleEvent(input.UIEvent{Type: input.EventMove, X: 50, Y: 50, WidgetW: 100, WidgetH: 100})

			require.Eventually(t, func() bool { return inj.len() == 3 }, 2*time.Second, 5*time.Millisecond)
			assert.Equal(t, []string{
				input.Command{Op: input.KeyDown, Code: 66}.String(),
				input.Command{Op: input.KeyUp, Code: 66}.String(),
				input.Command{Op: input.Move, X: 8, Y: 4}.String(),
			}, inj.list())
			assert.Equal(t, int64(1), v.Stats().Suppressed.Load())

			v.Close()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("viewer did not stop")
			}
		})
	}
}

func TestDialBadSecret(t *testing.T) {
	addr := startSource(t, compress.Zstd, &recorder{})
	_, err := Dial(context.Background(), Config{Addr: addr, Transport: transport.TCP, Secret: "nope", Codec: compress.Zstd})
	assert.ErrorIs(t, err, protocol.ErrBadSecret)
	assert.ErrorIs(t, err, types.ProtocolViolation)
}

func TestDialRequiresSecret(t *testing.T) {
	_, err := Dial(context.Background(), Config{Addr: "127.0.0.1:1", Transport: transport.TCP})
	assert.Error(t, err)
}

func TestViewerEndsWhenSourceGoes(t *testing.T) {
	inj := &recorder{}
	addr := startSource(t, compress.Zstd, inj)
	v, err := Dial(context.Background(), Config{Addr: addr, Transport: transport.TCP, Secret: secret, Codec: compress.Zstd})
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- v.Run(context.Background()) }()
	require.Eventually(t, func() bool { return v.Display().Seq() > 0 }, 2*time.Second, 5*time.Millisecond)

	// A second viewer preempts the first.
	v2, err := Dial(context.Background(), Config{Addr: addr, Transport: transport.TCP, Secret: secret, Codec: compress.Zstd})
	require.NoError(t, err)
	defer v2.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, types.TransportError)
	case <-time.After(3 * time.Second):
		t.Fatal("first viewer did not notice preemption")
	}
}

func TestHTTPSurface(t *testing.T) {
	inj := &recorder{}
	addr := startSource(t, compress.Zstd, inj)
	v, err := Dial(context.Background(), Config{
		Addr: addr, Transport: transport.TCP, Secret: secret, Codec: compress.Zstd,
		Gatherer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	ts := httptest.NewServer(v.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/frame.png")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	go v.Run(context.Background())
	defer v.Close()
	require.Eventually(t, func() bool { return v.Display().Seq() > 0 }, 2*time.Second, 5*time.Millisecond)

	resp, err = http.Get(ts.URL + "/frame.png")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	body := `[{"type":"enter"},{"type":"buttondown","code":0},{"type":"buttonup","code":0}]`
	resp, err = http.Post(ts.URL+"/input", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Eventually(t, func() bool { return inj.len() == 2 }, 2*time.Second, 5*time.Millisecond)

	resp, err = http.Post(ts.URL+"/input", "application/json", strings.NewReader(`[{"type":"warp"}]`))
	require.NoError(t, err)
	msg, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(msg), "warp")
}
