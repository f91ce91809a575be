package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

var quicConfig = &quic.Config{
	MaxIdleTimeout:  30 * time.Second,
	KeepAlivePeriod: 10 * time.Second,
}

// streamConn is the single bidirectional stream of a QUIC connection.
type streamConn struct {
	*quic.Stream
	conn *quic.Conn
}

func (c *streamConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *streamConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close tears down the whole connection; closing the stream alone only
// ends the send direction.
func (c *streamConn) Close() error {
	c.Stream.CancelRead(0)
	c.Stream.Close()
	return c.conn.CloseWithError(0, "")
}

// streamTimeout bounds how long a connected peer may take to open its
// stream before it is dropped.
const streamTimeout = 10 * time.Second

// quicListener accepts connections in the background; each one waits for
// its stream on its own goroutine so a silent peer cannot hold up others.
type quicListener struct {
	ln     *quic.Listener
	accept chan Conn
	done   chan struct{}
	once   sync.Once
}

func listenQUIC(addr string, cfg *tls.Config) (*quicListener, error) {
	ln, err := quic.ListenAddr(addr, cfg, quicConfig)
	if err != nil {
		return nil, err
	}
	l := &quicListener{
		ln:     ln,
		accept: make(chan Conn),
		done:   make(chan struct{}),
	}
	go l.serve()
	return l, nil
}

func (l *quicListener) serve() {
	defer l.Close()
	for {
		conn, err := l.ln.Accept(context.Background())
		if err != nil {
			if !errors.Is(err, quic.ErrServerClosed) {
				log.Printf("transport: quic accept: %v", err)
			}
			return
		}
		go l.awaitStream(conn)
	}
}

// awaitStream waits for the client's stream; the client opens it and
// writes its ticket first.
func (l *quicListener) awaitStream(conn *quic.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), streamTimeout)
	defer cancel()
	go func() {
		select {
		case <-l.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	st, err := conn.AcceptStream(ctx)
	if err != nil {
		log.Printf("transport: quic peer %s opened no stream: %v", conn.RemoteAddr(), err)
		conn.CloseWithError(1, "no stream")
		return
	}
	c := &streamConn{Stream: st, conn: conn}
	select {
	case l.accept <- c:
	case <-l.done:
		c.Close()
	}
}

func (l *quicListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *quicListener) Addr() net.Addr { return l.ln.Addr() }

func (l *quicListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.ln.Close()
	})
	return err
}

func dialQUIC(ctx context.Context, addr string, cfg *tls.Config) (Conn, error) {
	conn, err := quic.DialAddr(ctx, addr, cfg, quicConfig)
	if err != nil {
		return nil, err
	}
	st, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "")
		return nil, err
	}
	return &streamConn{Stream: st, conn: conn}, nil
}
