package transport

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const wsPath = "/ws"

// closeGrace bounds how long Close waits to send the close frame.
const closeGrace = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	// The ticket handshake authenticates; browsers are not a client.
	CheckOrigin: func(*http.Request) bool { return true },
}

func listenWS(addr string) (*httpListener, error) {
	return newHTTPListener(addr, func(r chi.Router, l *httpListener) {
		r.Get(wsPath, func(w http.ResponseWriter, req *http.Request) {
			c, err := upgrader.Upgrade(w, req, nil)
			if err != nil {
				log.Printf("transport: ws upgrade from %s: %v", req.RemoteAddr, err)
				return
			}
			l.deliver(newWSConn(c))
		})
	})
}

func dialWS(ctx context.Context, addr string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, "ws://"+addr+wsPath, nil)
	if err != nil {
		return nil, err
	}
	return newWSConn(c), nil
}

// wsConn turns a message stream into a byte stream. Each Write is one
// binary message; Read spans message boundaries.
type wsConn struct {
	c   *websocket.Conn
	r   io.Reader
	wmu sync.Mutex
}

func newWSConn(c *websocket.Conn) *wsConn { return &wsConn{c: c} }

func (w *wsConn) Read(p []byte) (int, error) {
	for {
		if w.r == nil {
			mt, r, err := w.c.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					return 0, io.ErrUnexpectedEOF
				}
				return 0, err
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			w.r = r
		}
		n, err := w.r.Read(p)
		if err == io.EOF {
			w.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (w *wsConn) Write(p []byte) (int, error) {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	if err := w.c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close must not wait for wmu: a writer stalled on a slow peer holds it,
// and closing the socket is what unblocks that writer.
func (w *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		log.Printf("transport: ws close frame to %s: %v", w.c.RemoteAddr(), err)
	}
	return w.c.Close()
}

func (w *wsConn) RemoteAddr() net.Addr { return w.c.RemoteAddr() }
