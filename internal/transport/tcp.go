package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net"
)

type tcpListener struct {
	ln   net.Listener
	opts Options
}

func listenTCP(addr string, cfg *tls.Config, opts Options) (*tcpListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		ln = tls.NewListener(ln, cfg)
	}
	return &tcpListener{ln: ln, opts: opts}, nil
}

func (l *tcpListener) Accept(ctx context.Context) (Conn, error) {
	stop := context.AfterFunc(ctx, func() { l.ln.Close() })
	defer stop()
	c, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	tune(c, l.opts)
	return c, nil
}

func (l *tcpListener) Addr() net.Addr { return l.ln.Addr() }
func (l *tcpListener) Close() error   { return l.ln.Close() }

func dialTCP(ctx context.Context, addr string, cfg *tls.Config, opts Options) (Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	tune(c, opts)
	if cfg == nil {
		return c, nil
	}
	tc := tls.Client(c, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return tc, nil
}

func tune(c net.Conn, opts Options) {
	if opts.SendBuffer <= 0 {
		return
	}
	tc, ok := c.(*net.TCPConn)
	if !ok {
		if t, isTLS := c.(*tls.Conn); isTLS {
			tc, ok = t.NetConn().(*net.TCPConn)
		}
	}
	if !ok {
		return
	}
	got, err := setSendBuffer(tc, opts.SendBuffer)
	if err != nil {
		log.Printf("transport: SO_SNDBUF: %v", err)
		return
	}
	if got < opts.SendBuffer {
		log.Printf("transport: SO_SNDBUF capped at %d (asked %d)", got, opts.SendBuffer)
	}
}
