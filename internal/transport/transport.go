// Package transport provides the reliable ordered byte streams a session
// runs over. Every kind yields a Conn; frame and input traffic share it,
// one direction each.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// Kind selects a transport.
type Kind string

const (
	TCP    Kind = "tcp"
	TLS    Kind = "tls"
	QUIC   Kind = "quic"
	WS     Kind = "ws"
	WebRTC Kind = "webrtc"
)

var ErrUnknownKind = errors.New("transport: unknown kind")

var ErrClosed = errors.New("transport: listener closed")

// ParseKind accepts the names used on the command line.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case TCP, TLS, QUIC, WS, WebRTC:
		return k, nil
	case "websocket":
		return WS, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Conn is one duplex session stream.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

// Listener accepts session streams.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}

// Options configure both ends.
type Options struct {
	// TLS is the server certificate config for tls and quic listeners, or
	// the client config for dialers. Listeners fall back to a self-signed
	// certificate; dialers fall back to an unverified config.
	TLS *tls.Config
	// SendBuffer sets SO_SNDBUF on TCP connections when positive.
	SendBuffer int
	// ICEServers are STUN/TURN URLs for webrtc. Empty means host
	// candidates only.
	ICEServers []string
}

// Listen opens a listener of kind k on addr.
func Listen(k Kind, addr string, opts Options) (Listener, error) {
	switch k {
	case TCP:
		return listenTCP(addr, nil, opts)
	case TLS:
		cfg, err := serverTLS(opts.TLS, "")
		if err != nil {
			return nil, err
		}
		return listenTCP(addr, cfg, opts)
	case QUIC:
		cfg, err := serverTLS(opts.TLS, alpn)
		if err != nil {
			return nil, err
		}
		return listenQUIC(addr, cfg)
	case WS:
		return listenWS(addr)
	case WebRTC:
		return listenWebRTC(addr, opts)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
}

// Dial connects to a listener of kind k at addr.
func Dial(ctx context.Context, k Kind, addr string, opts Options) (Conn, error) {
	switch k {
	case TCP:
		return dialTCP(ctx, addr, nil, opts)
	case TLS:
		return dialTCP(ctx, addr, clientTLS(opts.TLS, ""), opts)
	case QUIC:
		return dialQUIC(ctx, addr, clientTLS(opts.TLS, alpn))
	case WS:
		return dialWS(ctx, addr)
	case WebRTC:
		return dialWebRTC(ctx, addr, opts)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
}

// addr is a net.Addr for transports without a socket address of their own.
type addr struct {
	network, s string
}

func (a addr) Network() string { return a.network }
func (a addr) String() string  { return a.s }
