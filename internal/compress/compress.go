// Package compress wraps frame payloads for the wire. Generic strategies
// (zstd, deflate) compress XOR diffs produced by package delta; the video
// strategy feeds I420 frames to an inter-frame codec and skips diffing.
package compress

import (
	"errors"
	"fmt"
	"strings"
)

// Kind selects a compression strategy for a session.
type Kind int

const (
	Zstd Kind = iota
	Deflate
	VP8
)

var ErrUnknownKind = errors.New("compress: unknown kind")

func (k Kind) String() string {
	switch k {
	case Zstd:
		return "zstd"
	case Deflate:
		return "deflate"
	case VP8:
		return "vp8"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Differential reports whether frames must be XOR-diffed before Encode.
// Video codecs do their own inter-frame prediction and take raw I420.
func (k Kind) Differential() bool { return k != VP8 }

// DefaultLevel is the level used when none is configured.
func (k Kind) DefaultLevel() int {
	switch k {
	case Deflate:
		return 6
	case VP8:
		return 2000 // kbps
	default:
		return 3
	}
}

// ParseKind accepts the names returned by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zstd", "":
		return Zstd, nil
	case "deflate", "flate":
		return Deflate, nil
	case "vp8", "vpx":
		return VP8, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Encoder turns one frame into zero or more wire packets. Returned packets
// are only valid until the next call. Generic encoders always return
// exactly one packet.
type Encoder interface {
	Encode(frame []byte) ([][]byte, error)
	Close() error
}

// Decoder turns one wire packet back into a frame. A nil frame with a nil
// error means the codec buffered the packet without producing a picture.
// The returned slice is only valid until the next call.
type Decoder interface {
	Decode(packet []byte) ([]byte, error)
	Close() error
}

// Options configures an encoder or decoder for one session.
type Options struct {
	Kind   Kind
	Level  int
	Width  int
	Height int
	FPS    int
}

// FrameSize is the exact length a decoder must produce: packed RGB for
// differential kinds, I420 for video kinds.
func (o Options) FrameSize() int {
	if o.Kind.Differential() {
		return o.Width * o.Height * 3
	}
	cw, ch := (o.Width+1)/2, (o.Height+1)/2
	return o.Width*o.Height + 2*cw*ch
}

// NewEncoder builds the encoder for o.Kind.
func NewEncoder(o Options) (Encoder, error) {
	switch o.Kind {
	case Zstd:
		return newZstdEncoder(o)
	case Deflate:
		return newFlateEncoder(o)
	case VP8:
		return newVideoEncoder(o)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(o.Kind))
}

// NewDecoder builds the decoder for o.Kind.
func NewDecoder(o Options) (Decoder, error) {
	switch o.Kind {
	case Zstd:
		return newZstdDecoder(o)
	case Deflate:
		return newFlateDecoder(o)
	case VP8:
		return newVideoDecoder(o)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(o.Kind))
}
