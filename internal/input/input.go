// Package input encodes keyboard and mouse commands sent from the viewer to
// the source. Every command is one opcode byte followed by a fixed number
// of parameter bytes: 1 for keys and buttons, 0 for wheel notches, 4 for a
// move (x, y as big-endian u16).
package input

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"deskmirror/internal/keystate"
	"deskmirror/internal/types"
)

// Op is a command opcode.
type Op uint8

const (
	KeyUp           Op = 1
	KeyDown         Op = 2
	MouseButtonUp   Op = 3
	MouseButtonDown Op = 4
	WheelUp         Op = 5
	WheelDown       Op = 6
	Move            Op = 7
)

// Mouse button codes.
const (
	ButtonLeft   uint8 = 0
	ButtonMiddle uint8 = 1
	ButtonRight  uint8 = 2
)

var ErrUnknownOp = errors.New("input: unknown opcode")

func (o Op) String() string {
	switch o {
	case KeyUp:
		return "key_up"
	case KeyDown:
		return "key_down"
	case MouseButtonUp:
		return "mouse_up"
	case MouseButtonDown:
		return "mouse_down"
	case WheelUp:
		return "wheel_up"
	case WheelDown:
		return "wheel_down"
	case Move:
		return "move"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// ParamSize is the number of bytes following the opcode, or -1 if the
// opcode is not defined.
func (o Op) ParamSize() int {
	switch o {
	case KeyUp, KeyDown, MouseButtonUp, MouseButtonDown:
		return 1
	case WheelUp, WheelDown:
		return 0
	case Move:
		return 4
	}
	return -1
}

// Command is one input event. Code is used by key and button ops, X and Y
// by Move.
type Command struct {
	Op   Op
	Code uint8
	X, Y uint16
}

func (c Command) String() string {
	switch c.Op.ParamSize() {
	case 1:
		return fmt.Sprintf("%s(%d)", c.Op, c.Code)
	case 4:
		return fmt.Sprintf("%s(%d,%d)", c.Op, c.X, c.Y)
	}
	return c.Op.String()
}

// MaxCommandSize is the longest encoded command.
const MaxCommandSize = 5

// AppendCommand appends the wire form of c to b.
func AppendCommand(b []byte, c Command) ([]byte, error) {
	switch c.Op.ParamSize() {
	case 0:
		return append(b, byte(c.Op)), nil
	case 1:
		return append(b, byte(c.Op), c.Code), nil
	case 4:
		b = append(b, byte(c.Op))
		b = binary.BigEndian.AppendUint16(b, c.X)
		return binary.BigEndian.AppendUint16(b, c.Y), nil
	}
	return b, fmt.Errorf("%w %d", ErrUnknownOp, uint8(c.Op))
}

// Encoder writes commands and suppresses key-down repeats for keys the
// source already considers held. It is not safe for concurrent use.
type Encoder struct {
	w    io.Writer
	keys keystate.Tracker
	buf  [MaxCommandSize]byte
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes c unless it is a repeated key-down. It reports whether
// anything was written.
func (e *Encoder) Encode(c Command) (bool, error) {
	switch c.Op {
	case KeyDown:
		if !e.keys.Press(c.Code) {
			return false, nil
		}
	case KeyUp:
		e.keys.Release(c.Code)
	}
	b, err := AppendCommand(e.buf[:0], c)
	if err != nil {
		return false, types.Errorf(types.ProtocolViolation, "encode input", err)
	}
	if _, err := e.w.Write(b); err != nil {
		return false, types.Errorf(types.TransportError, "write input", err)
	}
	return true, nil
}

// Held returns the keys the encoder has sent key-downs for.
func (e *Encoder) Held() []uint8 { return e.keys.Held() }

// Decoder reads commands from the source side of the connection.
type Decoder struct {
	r   io.Reader
	buf [MaxCommandSize]byte
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next reads one complete command. An unknown opcode is a protocol
// violation and the channel must be abandoned.
func (d *Decoder) Next() (Command, error) {
	if _, err := io.ReadFull(d.r, d.buf[:1]); err != nil {
		return Command{}, types.Errorf(types.TransportError, "read opcode", err)
	}
	c := Command{Op: Op(d.buf[0])}
	n := c.Op.ParamSize()
	if n < 0 {
		return Command{}, types.Errorf(types.ProtocolViolation, "read input", fmt.Errorf("%w %d", ErrUnknownOp, d.buf[0]))
	}
	if n == 0 {
		return c, nil
	}
	p := d.buf[1 : 1+n]
	if _, err := io.ReadFull(d.r, p); err != nil {
		return Command{}, types.Errorf(types.TransportError, "read input params", err)
	}
	if n == 1 {
		c.Code = p[0]
	} else {
		c.X = binary.BigEndian.Uint16(p[0:2])
		c.Y = binary.BigEndian.Uint16(p[2:4])
	}
	return c, nil
}

// Dispatch replays c on inj. Wheel notches map to a scroll of 2 lines.
func Dispatch(inj types.Injector, c Command) {
	switch c.Op {
	case KeyUp:
		inj.KeyUp(c.Code)
	case KeyDown:
		inj.KeyDown(c.Code)
	case MouseButtonUp:
		inj.MouseButtonUp(c.Code)
	case MouseButtonDown:
		inj.MouseButtonDown(c.Code)
	case WheelUp:
		inj.Scroll(-2)
	case WheelDown:
		inj.Scroll(2)
	case Move:
		inj.MoveTo(int(c.X), int(c.Y))
	}
}

// ScalePoint maps a pointer position inside a widget of size
// widgetW x widgetH to the source's display coordinates, clamped to the
// display.
func ScalePoint(x, y, widgetW, widgetH int, width, height uint16) (uint16, uint16) {
	if widgetW <= 0 || widgetH <= 0 {
		return 0, 0
	}
	sx := int(width) * x / widgetW
	sy := int(height) * y / widgetH
	sx = max(0, min(sx, int(width)-1))
	sy = max(0, min(sy, int(height)-1))
	return uint16(sx), uint16(sy)
}
