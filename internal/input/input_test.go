package input

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskmirror/internal/types"
)

func TestKeyRepeatSuppressed(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	seq := []Command{
		{Op: KeyDown, Code: 65},
		{Op: KeyDown, Code: 65},
		{Op: KeyUp, Code: 65},
		{Op: KeyDown, Code: 65},
	}
	sent := 0
	for _, c := range seq {
		ok, err := enc.Encode(c)
		require.NoError(t, err)
		if ok {
			sent++
		}
	}
	assert.Equal(t, 3, sent)
	assert.Equal(t, []byte{2, 65, 1, 65, 2, 65}, buf.Bytes())
	assert.Equal(t, []uint8{65}, enc.Held())
}

func TestKeyUpAlwaysEmitted(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i := 0; i < 2; i++ {
		ok, err := enc.Encode(Command{Op: KeyUp, Code: 13})
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, []byte{1, 13, 1, 13}, buf.Bytes())
}

func TestWireEncoding(t *testing.T) {
	tests := []struct {
		cmd  Command
		want []byte
	}{
		{Command{Op: KeyUp, Code: 9}, []byte{1, 9}},
		{Command{Op: KeyDown, Code: 200}, []byte{2, 200}},
		{Command{Op: MouseButtonUp, Code: ButtonRight}, []byte{3, 2}},
		{Command{Op: MouseButtonDown, Code: ButtonLeft}, []byte{4, 0}},
		{Command{Op: WheelUp}, []byte{5}},
		{Command{Op: WheelDown}, []byte{6}},
		{Command{Op: Move, X: 0x0102, Y: 0x0304}, []byte{7, 1, 2, 3, 4}},
	}
	for _, tc := range tests {
		t.Run(tc.cmd.String(), func(t *testing.T) {
			got, err := AppendCommand(nil, tc.cmd)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			dec := NewDecoder(bytes.NewReader(got))
			c, err := dec.Next()
			require.NoError(t, err)
			assert.Equal(t, tc.cmd, c)
		})
	}
}

func TestDecoderUnknownOpcode(t *testing.T) {
	dec := NewDecoder(bytes.NewReader([]byte{5, 8, 1}))
	c, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, WheelUp, c.Op)

	_, err = dec.Next()
	assert.ErrorIs(t, err, ErrUnknownOp)
	assert.ErrorIs(t, err, types.ProtocolViolation)
}

func TestDecoderTruncated(t *testing.T) {
	dec := NewDecoder(bytes.NewReader([]byte{7, 0, 1}))
	_, err := dec.Next()
	assert.ErrorIs(t, err, types.TransportError)
}

func TestAppendUnknownOp(t *testing.T) {
	_, err := AppendCommand(nil, Command{Op: 0})
	assert.ErrorIs(t, err, ErrUnknownOp)
}

type recorder struct {
	calls []string
}

func (r *recorder) KeyDown(c uint8)         { r.calls = append(r.calls, "kd"+string(rune('0'+c))) }
func (r *recorder) KeyUp(c uint8)           { r.calls = append(r.calls, "ku"+string(rune('0'+c))) }
func (r *recorder) MouseButtonDown(b uint8) { r.calls = append(r.calls, "md"+string(rune('0'+b))) }
func (r *recorder) MouseButtonUp(b uint8)   { r.calls = append(r.calls, "mu"+string(rune('0'+b))) }
func (r *recorder) Scroll(dy int) {
	if dy < 0 {
		r.calls = append(r.calls, "up")
	} else {
		r.calls = append(r.calls, "down")
	}
}
func (r *recorder) MoveTo(x, y int) { r.calls = append(r.calls, "mv") }
func (r *recorder) Close()          {}

func TestDispatch(t *testing.T) {
	var rec recorder
	for _, c := range []Command{
		{Op: KeyDown, Code: 1},
		{Op: KeyUp, Code: 1},
		{Op: MouseButtonDown, Code: 2},
		{Op: MouseButtonUp, Code: 2},
		{Op: WheelUp},
		{Op: WheelDown},
		{Op: Move, X: 3, Y: 4},
	} {
		Dispatch(&rec, c)
	}
	assert.Equal(t, []string{"kd1", "ku1", "md2", "mu2", "up", "down", "mv"}, rec.calls)
}

func TestScalePoint(t *testing.T) {
	x, y := ScalePoint(250, 150, 500, 300, 1920, 1080)
	assert.Equal(t, uint16(960), x)
	assert.Equal(t, uint16(540), y)

	x, y = ScalePoint(600, -5, 500, 300, 1920, 1080)
	assert.Equal(t, uint16(1919), x)
	assert.Equal(t, uint16(0), y)

	x, y = ScalePoint(1, 1, 0, 0, 1920, 1080)
	assert.Zero(t, x)
	assert.Zero(t, y)
}

func TestTranslatorHooking(t *testing.T) {
	tr := NewTranslator(100, 50)

	_, ok := tr.Translate(UIEvent{Type: EventKeyDown, Code: 65})
	assert.False(t, ok, "events outside the surface are dropped")

	tr.Translate(UIEvent{Type: EventEnter})
	assert.True(t, tr.Hooked())

	c, ok := tr.Translate(UIEvent{Type: EventDrag, X: 50, Y: 25, WidgetW: 200, WidgetH: 100})
	require.True(t, ok)
	assert.Equal(t, Command{Op: Move, X: 25, Y: 12}, c)

	c, ok = tr.Translate(UIEvent{Type: EventWheel, WheelDY: -1})
	require.True(t, ok)
	assert.Equal(t, WheelUp, c.Op)

	_, ok = tr.Translate(UIEvent{Type: EventWheel})
	assert.False(t, ok)

	tr.Translate(UIEvent{Type: EventLeave})
	_, ok = tr.Translate(UIEvent{Type: EventButtonDown, Code: 0})
	assert.False(t, ok)
}
