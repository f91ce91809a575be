package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies session failures. Every kind except CaptureTransient
// is fatal to the session that produced it.
type ErrorKind int

const (
	ProtocolViolation ErrorKind = iota + 1
	TransportError
	CodecError
	CaptureTransient
)

func (k ErrorKind) String() string {
	switch k {
	case ProtocolViolation:
		return "protocol violation"
	case TransportError:
		return "transport error"
	case CodecError:
		return "codec error"
	case CaptureTransient:
		return "capture transient"
	default:
		return "unknown"
	}
}

// Error lets errors.Is(err, types.CodecError) match any *Error of that kind.
func (k ErrorKind) Error() string { return k.String() }

// Error is a classified failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

// Errorf builds a classified error.
func Errorf(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err, or 0 if it is not classified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
