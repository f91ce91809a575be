package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"deskmirror/internal/capture"
	"deskmirror/internal/inject"
	"deskmirror/internal/metrics"
	"deskmirror/internal/protocol"
	"deskmirror/internal/session"
	"deskmirror/internal/store"
	"deskmirror/internal/stream"
	"deskmirror/internal/transport"
	"deskmirror/internal/types"
)

// Config holds all source configuration.
type Config struct {
	Listen    string
	Transport transport.Kind
	Net       transport.Options
	// HTTPAddr serves /metrics, /debug/frame and /sessions. Empty disables.
	HTTPAddr string
	Secret   string
	Stream   stream.SenderConfig

	HandshakeTimeout time.Duration
	AuthFailLimit    int
	AuthFailWindow   time.Duration
	Stats            bool

	NewCapturer  capture.Factory
	InputFactory session.InjectorFactory
	Capture      capture.Options

	Metrics  *metrics.Metrics    // optional
	Gatherer prometheus.Gatherer // serves /metrics; defaults to the global registry
	Store    *store.DB           // optional
}

func (c *Config) validate() error {
	if c.Secret == "" {
		return errors.New("server: secret is required")
	}
	if c.NewCapturer == nil {
		return errors.New("server: no capture backend")
	}
	if c.Stream.FPS < 0 {
		return fmt.Errorf("server: fps must be >= 0, got %d", c.Stream.FPS)
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.Gatherer == nil {
		c.Gatherer = prometheus.DefaultGatherer
	}
	if c.AuthFailWindow <= 0 {
		c.AuthFailWindow = time.Minute
	}
	return nil
}

// Server is the source: it accepts viewers, one active session at a time.
type Server struct {
	cfg     Config
	ticket  protocol.Ticket
	limiter *authLimiter
	tracer  trace.Tracer

	mu   sync.Mutex
	ln   transport.Listener
	sess *session.Session
	// src is the capture source of the session being set up or running.
	src *capture.Source
}

func New(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Server{
		cfg:     cfg,
		ticket:  protocol.NewTicket(cfg.Secret),
		limiter: newAuthLimiter(cfg.AuthFailLimit, cfg.AuthFailWindow),
		tracer:  otel.Tracer("deskmirror/server"),
	}, nil
}

// Listen opens the session listener. Serve calls it if needed; calling it
// first lets the caller learn the bound address.
func (s *Server) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr(), nil
	}
	ln, err := transport.Listen(s.cfg.Transport, s.cfg.Listen, s.cfg.Net)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s %s: %w", s.cfg.Transport, s.cfg.Listen, err)
	}
	s.ln = ln
	return ln.Addr(), nil
}

// Serve accepts viewers until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}
	log.Printf("starting deskmirror source on %s/%s (codec %s, %d fps)",
		s.cfg.Transport, addr, s.cfg.Stream.Codec, s.cfg.Stream.FPS)

	if s.cfg.HTTPAddr != "" {
		hs := &http.Server{Addr: s.cfg.HTTPAddr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("server: http: %v", err)
			}
		}()
		defer hs.Close()
	}
	if s.cfg.Stats {
		go s.logStats(ctx)
	}

	defer s.Teardown()
	defer s.ln.Close()
	for {
		conn, err := s.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			log.Printf("server: accept: %v", err)
			continue
		}
		go s.handle(ctx, conn)
	}
}

// handle authenticates conn and, on success, replaces the active session.
func (s *Server) handle(ctx context.Context, conn transport.Conn) {
	remote := conn.RemoteAddr()
	ip := hostOf(remote)
	if s.limiter.Blocked(ip) {
		s.authFailed(ip, "rate_limited")
		conn.Close()
		return
	}

	start := time.Now()
	hctx, span := s.tracer.Start(ctx, "handshake",
		trace.WithAttributes(
			attribute.String("deskmirror.remote", remote.String()),
			attribute.String("deskmirror.transport", string(s.cfg.Transport)),
		))
	// Closing the connection is the only deadline every transport honours.
	timer := time.AfterFunc(s.cfg.HandshakeTimeout, func() { conn.Close() })

	var src *capture.Source
	err := protocol.ServerHandshakeFunc(conn, s.ticket, func() (protocol.Metadata, error) {
		s.Teardown()
		var err error
		src, err = s.openSource(hctx)
		if err != nil {
			return protocol.Metadata{}, err
		}
		w, h := src.Size()
		return protocol.Metadata{Width: uint16(w), Height: uint16(h)}, nil
	})
	stopped := timer.Stop()
	if err == nil && !stopped {
		err = types.Errorf(types.TransportError, "handshake", errors.New("timed out"))
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.Handshake.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		if errors.Is(err, protocol.ErrBadSecret) {
			s.limiter.Fail(ip)
			s.authFailed(ip, "bad_secret")
		} else {
			log.Printf("server: handshake with %s: %v", remote, err)
		}
		if src != nil {
			s.releaseSource(src)
		}
		conn.Close()
		return
	}
	span.SetStatus(codes.Ok, "")
	span.End()

	inj := s.newInjector()
	sess := session.New(session.Params{
		Conn:     conn,
		Source:   src,
		Injector: inj,
		Sender:   s.senderConfig(),
	})

	s.mu.Lock()
	if s.src != src {
		// Preempted by a newer viewer between handshake and here.
		s.mu.Unlock()
		sess.Close()
		return
	}
	s.sess = sess
	s.mu.Unlock()

	log.Printf("session %s started for %s", sess.ID, sess.Remote)
	untrack := s.sessionStarted(sess, src)
	err = sess.Run(ctx)
	untrack()
	s.sessionEnded(sess, err)

	s.mu.Lock()
	if s.sess == sess {
		s.sess = nil
		s.src = nil
	}
	s.mu.Unlock()
}

func (s *Server) openSource(ctx context.Context) (*capture.Source, error) {
	opts := s.cfg.Capture
	if m := s.cfg.Metrics; m != nil {
		opts.Observer = capture.Observer{
			GrabFailed: m.CaptureFailures.Inc,
			Reinit:     m.CaptureReinits.Inc,
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()
	src, err := capture.Open(ctx, s.cfg.NewCapturer, opts)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.src = src
	s.mu.Unlock()
	return src, nil
}

func (s *Server) releaseSource(src *capture.Source) {
	src.Close()
	s.mu.Lock()
	if s.src == src {
		s.src = nil
	}
	s.mu.Unlock()
}

func (s *Server) newInjector() types.Injector {
	if s.cfg.InputFactory != nil {
		inj, err := s.cfg.InputFactory()
		if err == nil {
			return inj
		}
		log.Printf("warning: input injector init failed, logging input only: %v", err)
	}
	return &inject.Logger{}
}

func (s *Server) senderConfig() stream.SenderConfig {
	c := s.cfg.Stream
	c.Stats = new(stream.Stats)
	return c
}

func (s *Server) authFailed(ip, reason string) {
	log.Printf("server: rejected %s (%s)", ip, reason)
	if s.cfg.Store != nil {
		if err := s.cfg.Store.AuthFailed(ip, reason, time.Now()); err != nil {
			log.Printf("server: store: %v", err)
		}
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.AuthFailures.WithLabelValues(reason).Inc()
	}
}

func (s *Server) sessionStarted(sess *session.Session, src *capture.Source) (untrack func()) {
	untrack = func() {}
	if m := s.cfg.Metrics; m != nil {
		m.SessionsTotal.Inc()
		m.ActiveSessions.Inc()
		untrack = m.Track(sess.Stats)
	}
	if s.cfg.Store != nil {
		w, h := src.Size()
		err := s.cfg.Store.SessionStarted(store.Session{
			ID:        sess.ID,
			Remote:    sess.Remote,
			Transport: string(s.cfg.Transport),
			Codec:     s.cfg.Stream.Codec.String(),
			Width:     w,
			Height:    h,
			StartedAt: sess.Started,
		})
		if err != nil {
			log.Printf("server: store: %v", err)
		}
	}
	return untrack
}

func (s *Server) sessionEnded(sess *session.Session, err error) {
	if err != nil {
		log.Printf("session %s ended: %v", sess.ID, err)
	}
	if m := s.cfg.Metrics; m != nil {
		m.ActiveSessions.Dec()
		m.SessionDuration.Observe(time.Since(sess.Started).Seconds())
		if err != nil {
			m.SessionErrors.WithLabelValues(types.KindOf(err).String()).Inc()
		}
	}
	if s.cfg.Store != nil {
		st := sess.Stats
		if serr := s.cfg.Store.SessionEnded(sess.ID, time.Now(), st.Packets.Load(), st.Bytes.Load(), st.Commands.Load(), err); serr != nil {
			log.Printf("server: store: %v", serr)
		}
	}
}

// Session returns the active session, if any.
func (s *Server) Session() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

// Teardown shuts down the active session and releases its capture source.
func (s *Server) Teardown() {
	s.mu.Lock()
	sess, src := s.sess, s.src
	s.sess, s.src = nil, nil
	s.mu.Unlock()
	if sess != nil {
		sess.Close()
	} else if src != nil {
		src.Close()
	}
}

func (s *Server) logStats(ctx context.Context) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if sess := s.Session(); sess != nil {
				log.Printf("pipeline: session=%s %s", sess.ID, sess.Stats)
			}
		}
	}
}
