package main

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"deskmirror/internal/capture"
	"deskmirror/internal/compress"
	"deskmirror/internal/delta"
	"deskmirror/internal/inject"
	"deskmirror/internal/metrics"
	"deskmirror/internal/platform"
	"deskmirror/internal/server"
	"deskmirror/internal/session"
	"deskmirror/internal/store"
	"deskmirror/internal/stream"
	tlsutil "deskmirror/internal/tls"
	"deskmirror/internal/transport"
	"deskmirror/internal/types"
)

type serveFlags struct {
	listen, transport, httpAddr, secret string
	codec                               string
	level, fps                          int
	quantize                            string
	skipThreshold                       int
	skipPause                           time.Duration
	capture, display                    string
	cursor, logInput                    bool
	width, height                       int
	db                                  string
	stats                               bool
	handshakeTimeout                    time.Duration
	authFailLimit                       int
	authFailWindow                      time.Duration
	tlsCert, tlsKey                     string
	sendBuffer                          int
	iceServers                          []string
}

func serveCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Share this machine's screen",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, &f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.listen, "listen", ":7900", "Session listen address")
	fl.StringVar(&f.transport, "transport", "tcp", "Session transport (tcp, tls, quic, ws, webrtc)")
	fl.StringVar(&f.httpAddr, "http", "", "Control HTTP address for /metrics, /debug/frame and /sessions (empty disables)")
	fl.StringVar(&f.secret, "secret", "", "Shared secret viewers must present (required)")
	fl.StringVar(&f.codec, "codec", "zstd", "Frame codec (zstd, deflate, vp8)")
	fl.IntVar(&f.level, "level", 0, "Compression level (0 = codec default)")
	fl.IntVar(&f.fps, "fps", stream.DefaultFPS, "Capture rate cap (0 = as fast as the screen changes)")
	fl.StringVar(&f.quantize, "quantize", fmt.Sprintf("%#x", delta.DefaultMask), "Per-byte mask applied before diffing (0 disables)")
	fl.IntVar(&f.skipThreshold, "skip-threshold", stream.DefaultSkipThreshold, "Payload size that triggers a send pause")
	fl.DurationVar(&f.skipPause, "skip-pause", stream.DefaultSkipPause, "Pause after a large payload (0 disables)")
	fl.StringVar(&f.capture, "capture", "auto", "Capture backend (auto, synthetic)")
	fl.StringVar(&f.display, "display", "", "X11 display to capture and inject into (default $DISPLAY)")
	fl.BoolVar(&f.cursor, "cursor", true, "Composite the pointer into captured frames")
	fl.BoolVar(&f.logInput, "log-input", false, "Log viewer input instead of injecting it")
	fl.IntVar(&f.width, "synthetic-width", 640, "Width of the synthetic capture source")
	fl.IntVar(&f.height, "synthetic-height", 480, "Height of the synthetic capture source")
	fl.StringVar(&f.db, "db", "", "SQLite path for session history (empty disables)")
	fl.BoolVar(&f.stats, "stats", false, "Log pipeline stats every 5 seconds")
	fl.DurationVar(&f.handshakeTimeout, "handshake-timeout", 10*time.Second, "Deadline for a viewer to authenticate")
	fl.IntVar(&f.authFailLimit, "auth-fail-limit", 10, "Max failed auth attempts per client IP per window (0 disables)")
	fl.DurationVar(&f.authFailWindow, "auth-fail-window", time.Minute, "Window for auth failure rate limiting")
	fl.StringVar(&f.tlsCert, "tls-cert", "", "TLS certificate (PEM) for tls/quic; self-signed if empty")
	fl.StringVar(&f.tlsKey, "tls-key", "", "TLS private key (PEM)")
	fl.IntVar(&f.sendBuffer, "send-buffer", 0, "TCP send buffer size in bytes (0 = OS default)")
	fl.StringSliceVar(&f.iceServers, "ice-server", nil, "STUN/TURN URL for the webrtc transport (repeatable)")
	return cmd
}

func runServe(cmd *cobra.Command, f *serveFlags) error {
	if f.secret == "" {
		return fmt.Errorf("--secret is required")
	}
	kind, err := transport.ParseKind(f.transport)
	if err != nil {
		return err
	}
	codec, err := compress.ParseKind(f.codec)
	if err != nil {
		return err
	}
	mask, err := strconv.ParseUint(f.quantize, 0, 8)
	if err != nil {
		return fmt.Errorf("--quantize: %w", err)
	}

	opts := transport.Options{SendBuffer: f.sendBuffer, ICEServers: f.iceServers}
	if kind == transport.TLS || kind == transport.QUIC {
		if opts.TLS, err = tlsutil.ServerConfig(f.tlsCert, f.tlsKey); err != nil {
			return err
		}
	}

	if d, err := platform.ResolveDisplay(f.display, platform.X11SocketDir); err == nil {
		f.display = d
		log.Printf("using display %s", d)
	} else if f.capture != "synthetic" {
		return err
	}
	newCapturer, err := captureFactory(f)
	if err != nil {
		return err
	}
	var newInjector session.InjectorFactory
	if f.logInput {
		newInjector = func() (types.Injector, error) { return &inject.Logger{}, nil }
	} else {
		newInjector = injectorFactory(f.display)
	}

	var db *store.DB
	if f.db != "" {
		if db, err = store.Open(f.db); err != nil {
			return err
		}
		defer db.Close()
	}

	srv, err := server.New(server.Config{
		Listen:    f.listen,
		Transport: kind,
		Net:       opts,
		HTTPAddr:  f.httpAddr,
		Secret:    f.secret,
		Stream: stream.SenderConfig{
			Codec:         codec,
			Level:         f.level,
			FPS:           f.fps,
			Mask:          byte(mask),
			SkipThreshold: f.skipThreshold,
			SkipPause:     f.skipPause,
		},
		HandshakeTimeout: f.handshakeTimeout,
		AuthFailLimit:    f.authFailLimit,
		AuthFailWindow:   f.authFailWindow,
		Stats:            f.stats,
		NewCapturer:      newCapturer,
		InputFactory:     newInjector,
		Metrics:          metrics.New(),
		Store:            db,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	err = srv.Serve(ctx)
	if ctx.Err() != nil {
		log.Printf("shutting down...")
	}
	return err
}

func captureFactory(f *serveFlags) (capture.Factory, error) {
	switch f.capture {
	case "synthetic":
		return capture.SyntheticFactory(f.width, f.height, 4*time.Second), nil
	case "auto", "":
		return nativeCapture(f.display, f.cursor)
	}
	return nil, fmt.Errorf("unknown capture backend %q", f.capture)
}
