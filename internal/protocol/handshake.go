package protocol

import (
	"fmt"
	"io"
	"log"

	"deskmirror/internal/types"
)

// ServerHandshake runs the source side: read the ticket, answer, and on
// success send the metadata. A bad ticket gets StatusBadSecret and an
// ErrBadSecret error; the caller closes the connection.
func ServerHandshake(rw io.ReadWriter, want Ticket, meta Metadata) error {
	if !meta.Valid() {
		return fmt.Errorf("%w: %dx%d", ErrBadMetadata, meta.Width, meta.Height)
	}
	return ServerHandshakeFunc(rw, want, func() (Metadata, error) { return meta, nil })
}

// ServerHandshakeFunc is ServerHandshake with the metadata produced only
// after the ticket is accepted, so session resources are not allocated
// for unauthenticated peers. If meta fails nothing more is written.
func ServerHandshakeFunc(rw io.ReadWriter, want Ticket, meta func() (Metadata, error)) error {
	var got Ticket
	if _, err := io.ReadFull(rw, got[:]); err != nil {
		return types.Errorf(types.TransportError, "read ticket", err)
	}
	if !got.Equal(want) {
		// The caller closes the connection whether or not the peer saw this.
		if _, err := rw.Write([]byte{StatusBadSecret}); err != nil {
			log.Printf("protocol: write auth status: %v", err)
		}
		return types.Errorf(types.ProtocolViolation, "auth", ErrBadSecret)
	}
	md, err := meta()
	if err != nil {
		return err
	}
	if !md.Valid() {
		return fmt.Errorf("%w: %dx%d", ErrBadMetadata, md.Width, md.Height)
	}
	m := md.Encode()
	out := [1 + MetadataSize]byte{StatusOK, m[0], m[1], m[2], m[3]}
	if _, err := rw.Write(out[:]); err != nil {
		return types.Errorf(types.TransportError, "write metadata", err)
	}
	return nil
}

// ClientHandshake runs the viewer side and returns the session metadata.
func ClientHandshake(rw io.ReadWriter, t Ticket) (Metadata, error) {
	if _, err := rw.Write(t[:]); err != nil {
		return Metadata{}, types.Errorf(types.TransportError, "write ticket", err)
	}
	var status [1]byte
	if _, err := io.ReadFull(rw, status[:]); err != nil {
		return Metadata{}, types.Errorf(types.TransportError, "read auth status", err)
	}
	switch status[0] {
	case StatusOK:
	case StatusBadSecret:
		return Metadata{}, types.Errorf(types.ProtocolViolation, "auth", ErrBadSecret)
	default:
		return Metadata{}, types.Errorf(types.ProtocolViolation, "auth", fmt.Errorf("%w %d", ErrAuthStatus, status[0]))
	}

	var b [MetadataSize]byte
	if _, err := io.ReadFull(rw, b[:]); err != nil {
		return Metadata{}, types.Errorf(types.TransportError, "read metadata", err)
	}
	meta := DecodeMetadata(b)
	if !meta.Valid() {
		return Metadata{}, types.Errorf(types.ProtocolViolation, "metadata", fmt.Errorf("%w: %dx%d", ErrBadMetadata, meta.Width, meta.Height))
	}
	return meta, nil
}
