// Package viewer is the receiving side: it authenticates to a source,
// rebuilds the remote display from frame packets and relays local input.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"deskmirror/internal/compress"
	"deskmirror/internal/input"
	"deskmirror/internal/metrics"
	"deskmirror/internal/protocol"
	"deskmirror/internal/stream"
	"deskmirror/internal/transport"
	"deskmirror/internal/types"
)

// Config holds all viewer configuration.
type Config struct {
	Addr      string
	Transport transport.Kind
	Net       transport.Options
	Secret    string
	// Codec must match the source's; it is not negotiated on the wire.
	Codec compress.Kind
	// HTTPAddr serves /frame.png, /input and /metrics. Empty disables.
	HTTPAddr         string
	HandshakeTimeout time.Duration
	Stats            bool

	Renderer types.Renderer      // optional
	Metrics  *metrics.Metrics    // optional
	Gatherer prometheus.Gatherer // serves /metrics; defaults to the global registry
}

// Viewer is one connected session.
type Viewer struct {
	cfg     Config
	conn    transport.Conn
	meta    protocol.Metadata
	display *stream.Display
	recv    *stream.Receiver
	relay   *stream.Relay
	stats   *stream.Stats

	mu    sync.Mutex
	trans *input.Translator

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects and authenticates. The returned viewer owns the connection.
func Dial(ctx context.Context, cfg Config) (*Viewer, error) {
	if cfg.Secret == "" {
		return nil, errors.New("viewer: secret is required")
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	ctx, span := otel.Tracer("deskmirror/viewer").Start(ctx, "connect")
	defer span.End()
	span.SetAttributes(
		attribute.String("deskmirror.addr", cfg.Addr),
		attribute.String("deskmirror.transport", string(cfg.Transport)),
	)

	dctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	conn, err := transport.Dial(dctx, cfg.Transport, cfg.Addr, cfg.Net)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, types.Errorf(types.TransportError, "dial", err)
	}
	stop := context.AfterFunc(dctx, func() { conn.Close() })
	meta, err := protocol.ClientHandshake(conn, protocol.NewTicket(cfg.Secret))
	if !stop() && err == nil {
		err = types.Errorf(types.TransportError, "handshake", dctx.Err())
	}
	if err != nil {
		conn.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("deskmirror.width", int(meta.Width)), attribute.Int("deskmirror.height", int(meta.Height)))
	log.Printf("viewer: connected to %s, remote display %dx%d", cfg.Addr, meta.Width, meta.Height)

	v, err := newViewer(conn, meta, cfg)
	if err != nil {
		conn.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return v, nil
}

func newViewer(conn transport.Conn, meta protocol.Metadata, cfg Config) (*Viewer, error) {
	stats := new(stream.Stats)
	display := stream.NewDisplay(int(meta.Width), int(meta.Height))
	recv, err := stream.NewReceiver(conn, cfg.Codec, display, stats)
	if err != nil {
		return nil, err
	}
	return &Viewer{
		cfg:     cfg,
		conn:    conn,
		meta:    meta,
		display: display,
		recv:    recv,
		relay:   stream.NewRelay(conn, stats),
		stats:   stats,
		trans:   input.NewTranslator(meta.Width, meta.Height),
		done:    make(chan struct{}),
	}, nil
}

// Size is the remote display size announced in the handshake.
func (v *Viewer) Size() (width, height int) { return int(v.meta.Width), int(v.meta.Height) }

func (v *Viewer) Display() *stream.Display { return v.display }

func (v *Viewer) Stats() *stream.Stats { return v.stats }

// HandleEvent feeds one render-surface event into the input relay.
func (v *Viewer) HandleEvent(ev input.UIEvent) {
	v.mu.Lock()
	c, ok := v.trans.Translate(ev)
	v.mu.Unlock()
	if ok {
		v.relay.Push(c)
	}
}

// Run pumps frames and input until either side fails, ctx is done or Close
// is called. It returns the first error; a local shutdown returns nil.
func (v *Viewer) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer v.Close()

	if v.cfg.Metrics != nil {
		defer v.cfg.Metrics.Track(v.stats)()
	}
	if v.cfg.Renderer != nil {
		go stream.RenderLoop(ctx, v.display, v.cfg.Renderer)
	}
	if v.cfg.HTTPAddr != "" {
		hs := &http.Server{Addr: v.cfg.HTTPAddr, Handler: v.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("viewer: http: %v", err)
			}
		}()
		defer hs.Close()
	}
	if v.cfg.Stats {
		go v.logStats(ctx)
	}

	errc := make(chan error, 2)
	go func() { errc <- v.recv.Run(ctx) }()
	go func() { errc <- v.relay.Run(ctx) }()

	var first error
	pending := 2
	select {
	case first = <-errc:
		pending--
	case <-v.done:
	case <-parent.Done():
	}
	local := parent.Err() != nil || v.isClosed()
	cancel()
	// Closing the connection unblocks the receiver's read.
	v.Close()
	for ; pending > 0; pending-- {
		if err := <-errc; first == nil {
			first = err
		}
	}

	if held := v.relay.Held(); len(held) > 0 {
		log.Printf("viewer: keys still held at disconnect: %v", held)
	}
	if local || first == nil || errors.Is(first, context.Canceled) {
		return nil
	}
	return fmt.Errorf("viewer: %w", first)
}

// Close ends the session. Safe to call more than once.
func (v *Viewer) Close() {
	v.closeOnce.Do(func() {
		close(v.done)
		v.conn.Close()
		log.Printf("viewer: disconnected from %s (%s)", v.cfg.Addr, v.stats)
	})
}

func (v *Viewer) isClosed() bool {
	select {
	case <-v.done:
		return true
	default:
		return false
	}
}

func (v *Viewer) logStats(ctx context.Context) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			log.Printf("pipeline: seq=%d %s", v.display.Seq(), v.stats)
		}
	}
}
