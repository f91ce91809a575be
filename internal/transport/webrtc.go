package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pion/webrtc/v4"
)

const (
	rtcPath  = "/rtc"
	rtcLabel = "deskmirror"
	// Outgoing writes are split into messages of at most rtcChunk bytes;
	// incoming messages must fit rtcMaxMessage.
	rtcChunk      = 16 * 1024
	rtcMaxMessage = 64 * 1024
)

func rtcAPI() *webrtc.API {
	var se webrtc.SettingEngine
	se.DetachDataChannels()
	se.SetIncludeLoopbackCandidate(true)
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

func rtcConfig(opts Options) webrtc.Configuration {
	var cfg webrtc.Configuration
	if len(opts.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: opts.ICEServers}}
	}
	return cfg
}

func listenWebRTC(addr string, opts Options) (*httpListener, error) {
	api := rtcAPI()
	return newHTTPListener(addr, func(r chi.Router, l *httpListener) {
		r.Post(rtcPath, func(w http.ResponseWriter, req *http.Request) {
			offer, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
			if err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			answer, err := acceptOffer(req.Context(), api, rtcConfig(opts), string(offer), req.RemoteAddr, l)
			if err != nil {
				log.Printf("transport: webrtc offer from %s: %v", req.RemoteAddr, err)
				http.Error(w, "bad offer", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/sdp")
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, answer)
		})
	})
}

func acceptOffer(ctx context.Context, api *webrtc.API, cfg webrtc.Configuration, sdp, remote string, l *httpListener) (string, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return "", fmt.Errorf("create peer connection: %w", err)
	}
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != rtcLabel {
			return
		}
		dc.OnOpen(func() {
			raw, err := dc.Detach()
			if err != nil {
				log.Printf("transport: webrtc detach: %v", err)
				pc.Close()
				return
			}
			l.deliver(newRTCConn(raw, pc, remote))
		})
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed {
			pc.Close()
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		pc.Close()
		return "", fmt.Errorf("set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("create answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		pc.Close()
		return "", ctx.Err()
	}
	return pc.LocalDescription().SDP, nil
}

func dialWebRTC(ctx context.Context, hostport string, opts Options) (Conn, error) {
	pc, err := rtcAPI().NewPeerConnection(rtcConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	ordered := true
	dc, err := pc.CreateDataChannel(rtcLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	opened := make(chan io.ReadWriteCloser, 1)
	failed := make(chan error, 1)
	dc.OnOpen(func() {
		raw, err := dc.Detach()
		if err != nil {
			failed <- err
			return
		}
		opened <- raw
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed {
			select {
			case failed <- fmt.Errorf("peer connection failed"):
			default:
			}
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}

	answer, err := postOffer(ctx, "http://"+hostport+rtcPath, pc.LocalDescription().SDP)
	if err != nil {
		pc.Close()
		return nil, err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	select {
	case raw := <-opened:
		return newRTCConn(raw, pc, hostport), nil
	case err := <-failed:
		pc.Close()
		return nil, err
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}
}

func postOffer(ctx context.Context, url, sdp string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(sdp))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/sdp")
	client := http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post offer: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read answer: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("offer rejected: %s", resp.Status)
	}
	return string(body), nil
}

// rtcConn is a detached, reliable, ordered data channel read as a byte
// stream.
type rtcConn struct {
	rw     io.ReadWriteCloser
	pc     *webrtc.PeerConnection
	msg    []byte
	unread []byte
	remote net.Addr
}

func newRTCConn(rw io.ReadWriteCloser, pc *webrtc.PeerConnection, remote string) *rtcConn {
	return &rtcConn{
		rw:     rw,
		pc:     pc,
		msg:    make([]byte, rtcMaxMessage),
		remote: addr{network: "webrtc", s: remote},
	}
}

func (c *rtcConn) Read(p []byte) (int, error) {
	for len(c.unread) == 0 {
		n, err := c.rw.Read(c.msg)
		if err != nil {
			return 0, err
		}
		c.unread = c.msg[:n]
	}
	n := copy(p, c.unread)
	c.unread = c.unread[n:]
	return n, nil
}

func (c *rtcConn) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := min(len(p), rtcChunk)
		if _, err := c.rw.Write(p[:n]); err != nil {
			return written, err
		}
		written += n
		p = p[n:]
	}
	return written, nil
}

func (c *rtcConn) Close() error {
	c.rw.Close()
	return c.pc.Close()
}

func (c *rtcConn) RemoteAddr() net.Addr { return c.remote }
