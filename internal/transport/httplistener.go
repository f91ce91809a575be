package transport

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// httpListener serves an HTTP-signalled transport and hands accepted
// streams to Accept.
type httpListener struct {
	ln     net.Listener
	srv    *http.Server
	accept chan Conn
	done   chan struct{}
	once   sync.Once
}

func newHTTPListener(addr string, mount func(chi.Router, *httpListener)) (*httpListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &httpListener{
		ln:     ln,
		accept: make(chan Conn),
		done:   make(chan struct{}),
	}
	r := chi.NewRouter()
	mount(r, l)
	l.srv = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("transport: http: %v", err)
		}
	}()
	return l, nil
}

// deliver passes c to a pending Accept, or closes it if the listener is
// shut down first.
func (l *httpListener) deliver(c Conn) {
	select {
	case l.accept <- c:
	case <-l.done:
		c.Close()
	}
}

func (l *httpListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *httpListener) Addr() net.Addr { return l.ln.Addr() }

func (l *httpListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}
