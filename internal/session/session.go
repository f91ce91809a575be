package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"deskmirror/internal/protocol"
	"deskmirror/internal/stream"
	"deskmirror/internal/transport"
	"deskmirror/internal/types"
)

// InjectorFactory creates the injection backend for a new session.
type InjectorFactory func() (types.Injector, error)

// Source is the capture side of a session; capture.Source implements it.
type Source interface {
	stream.FrameSource
	Close()
}

// Params are the resources a source session takes ownership of.
type Params struct {
	Conn     transport.Conn
	Source   Source
	Injector types.Injector
	Sender   stream.SenderConfig
}

// Session is one authenticated viewer on the source: a frame sender and
// an input injector sharing one connection.
type Session struct {
	ID      string
	Remote  string
	Started time.Time
	Stats   *stream.Stats
	Stop    chan struct{}

	conn     transport.Conn
	source   Source
	injector types.Injector
	sender   stream.SenderConfig

	mu     sync.Mutex
	state  protocol.State
	closed bool
	err    error
}

func New(p Params) *Session {
	stats := p.Sender.Stats
	if stats == nil {
		stats = new(stream.Stats)
		p.Sender.Stats = stats
	}
	return &Session{
		ID:       uuid.New().String(),
		Remote:   p.Conn.RemoteAddr().String(),
		Started:  time.Now(),
		Stats:    stats,
		Stop:     make(chan struct{}),
		state:    protocol.Handshook,
		conn:     p.Conn,
		source:   p.Source,
		injector: p.Injector,
		sender:   p.Sender,
	}
}

// Run streams until either pump fails, ctx is done or Close is called.
// It always closes the session and returns the first pump error (nil when
// closed locally).
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.Stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if !s.setState(protocol.Streaming) {
		return s.Err()
	}
	sender, err := stream.NewSender(s.source, s.conn, s.sender)
	if err != nil {
		s.fail(err)
		return s.Err()
	}

	errc := make(chan error, 2)
	go func() { errc <- sender.Run(ctx) }()
	go func() { errc <- stream.InjectLoop(ctx, s.conn, s.injector, s.Stats) }()

	err = <-errc
	s.fail(err)
	// Closing the connection unblocks the other pump.
	<-errc
	return s.Err()
}

// fail records the first error and closes the session. Errors caused by a
// local Close are not recorded.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if !s.closed && s.err == nil && err != nil && !errors.Is(err, context.Canceled) {
		s.err = err
	}
	s.mu.Unlock()
	s.Close()
}

// Err is the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the whole session down. Safe to call more than once and from
// any goroutine. The lock is released before the resources are closed: a
// transport Close may wait on a stalled writer.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = protocol.Closed
	close(s.Stop)
	s.mu.Unlock()

	s.conn.Close()
	if s.injector != nil {
		s.injector.Close()
	}
	s.source.Close()
	log.Printf("session %s closed after %s (%s)", s.ID, time.Since(s.Started).Round(time.Millisecond), s.Stats)
}

func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// State reports where the session is in its lifecycle.
func (s *Session) State() protocol.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState moves an open session to st; it reports false once closed.
func (s *Session) setState(st protocol.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.state = st
	return true
}
