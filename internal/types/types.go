package types

// Frame is one captured screen frame in a packed 32-bit pixel layout.
// Data is only valid until the next Grab on the same capturer.
type Frame struct {
	Data   []byte
	Width  int
	Height int
	Stride int
	PixFmt int // PixFmtBGRA (default) or PixFmtRGBA
}

const (
	PixFmtBGRA = 0
	PixFmtRGBA = 1
)

// MediaCapturer is a raw screen-capture backend.
type MediaCapturer interface {
	Width() int
	Height() int
	Grab() (*Frame, error)
	Close()
}

// Injector replays input commands on the source machine. Calls are
// fire-and-forget; backends log and drop what they cannot map.
type Injector interface {
	KeyDown(code uint8)
	KeyUp(code uint8)
	MouseButtonDown(button uint8)
	MouseButtonUp(button uint8)
	Scroll(deltaY int)
	MoveTo(x, y int)
	Close()
}

// Renderer displays a reconstructed frame. pix is packed RGB, row-major,
// width*height*3 bytes, and must not be retained after Render returns.
type Renderer interface {
	Render(pix []byte, width, height int)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(pix []byte, width, height int)

func (f RendererFunc) Render(pix []byte, width, height int) { f(pix, width, height) }
