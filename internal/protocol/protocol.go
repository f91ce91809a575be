// Package protocol implements the frame stream wire format.
//
// Viewer to source:
//
//	+----------------------+
//	| ticket (8 bytes)     |   then input commands (package input)
//	+----------------------+
//
// Source to viewer:
//
//	+--------+-------------------------+------------------------------+
//	| status | width u16 | height u16  | packets: len u24 BE | payload |...
//	| 1 byte | (big-endian, 4 bytes)   |                              |
//	+--------+-------------------------+------------------------------+
//
// The ticket is a non-cryptographic hash of a constant shared secret sent
// in the clear. Anyone who observes it can replay it. It is kept for wire
// compatibility only; run it over an encrypted transport and treat the
// secret as a weak gate, not authentication.
package protocol

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"

	"deskmirror/internal/types"
)

const (
	TicketSize    = 8
	MetadataSize  = 4
	HeaderSize    = 3
	MaxPacketSize = 1<<24 - 1
)

// Auth response bytes.
const (
	StatusOK        byte = 1
	StatusBadSecret byte = 2
)

var (
	ErrFrameTooLarge = errors.New("protocol: frame payload exceeds 16 MiB - 1")
	ErrBadSecret     = errors.New("protocol: source rejected the secret")
	ErrAuthStatus    = errors.New("protocol: unexpected auth status")
	ErrBadMetadata   = errors.New("protocol: invalid metadata")
)

// State is the connection state of one session.
type State int

const (
	Connecting State = iota
	Handshook
	Streaming
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Handshook:
		return "handshook"
	case Streaming:
		return "streaming"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Ticket proves knowledge of the shared secret.
type Ticket [TicketSize]byte

// NewTicket derives the ticket for secret.
func NewTicket(secret string) Ticket {
	var t Ticket
	binary.BigEndian.PutUint64(t[:], xxhash.Sum64String(secret))
	return t
}

// Equal compares in constant time.
func (t Ticket) Equal(o Ticket) bool {
	return subtle.ConstantTimeCompare(t[:], o[:]) == 1
}

// Metadata fixes the session dimensions.
type Metadata struct {
	Width  uint16
	Height uint16
}

func (m Metadata) Valid() bool { return m.Width > 0 && m.Height > 0 }

func (m Metadata) Encode() [MetadataSize]byte {
	var b [MetadataSize]byte
	binary.BigEndian.PutUint16(b[0:2], m.Width)
	binary.BigEndian.PutUint16(b[2:4], m.Height)
	return b
}

func DecodeMetadata(b [MetadataSize]byte) Metadata {
	return Metadata{
		Width:  binary.BigEndian.Uint16(b[0:2]),
		Height: binary.BigEndian.Uint16(b[2:4]),
	}
}

// EncodeHeader writes the 3-byte big-endian length of a payload of n bytes.
func EncodeHeader(n int) ([HeaderSize]byte, error) {
	var h [HeaderSize]byte
	if n < 0 || n > MaxPacketSize {
		return h, fmt.Errorf("%w: %d", ErrFrameTooLarge, n)
	}
	h[0] = byte(n >> 16)
	h[1] = byte(n >> 8)
	h[2] = byte(n)
	return h, nil
}

func DecodeHeader(h [HeaderSize]byte) int {
	return int(h[0])<<16 | int(h[1])<<8 | int(h[2])
}

// WritePacket writes one length-prefixed frame packet.
func WritePacket(w io.Writer, payload []byte) error {
	h, err := EncodeHeader(len(payload))
	if err != nil {
		return types.Errorf(types.ProtocolViolation, "write packet", err)
	}
	if _, err := w.Write(h[:]); err != nil {
		return types.Errorf(types.TransportError, "write packet header", err)
	}
	if _, err := w.Write(payload); err != nil {
		return types.Errorf(types.TransportError, "write packet payload", err)
	}
	return nil
}

// PacketReader reads frame packets, reusing one payload buffer.
type PacketReader struct {
	r   io.Reader
	buf []byte
}

func NewPacketReader(r io.Reader) *PacketReader {
	return &PacketReader{r: r}
}

// Next returns the next payload. It is valid until the following call.
func (p *PacketReader) Next() ([]byte, error) {
	var h [HeaderSize]byte
	if _, err := io.ReadFull(p.r, h[:]); err != nil {
		return nil, types.Errorf(types.TransportError, "read packet header", err)
	}
	n := DecodeHeader(h)
	if cap(p.buf) < n {
		p.buf = make([]byte, n)
	}
	p.buf = p.buf[:n]
	if _, err := io.ReadFull(p.r, p.buf); err != nil {
		return nil, types.Errorf(types.TransportError, "read packet payload", err)
	}
	return p.buf, nil
}
