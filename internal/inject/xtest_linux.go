//go:build linux && cgo

package inject

/*
#cgo pkg-config: x11 xtst
#include <X11/Xlib.h>
#include <X11/extensions/XTest.h>
#include <stdlib.h>

static Display* inject_open(const char *name) {
	return XOpenDisplay(name);
}

static void inject_move(Display *d, int x, int y) {
	XTestFakeMotionEvent(d, DefaultScreen(d), x, y, 0);
	XFlush(d);
}

static void inject_button(Display *d, int button, int press) {
	XTestFakeButtonEvent(d, button, press, 0);
	XFlush(d);
}

// Clicks button n times; wheel steps are buttons 4 (up) and 5 (down).
static void inject_click(Display *d, int button, int n) {
	for (int i = 0; i < n; i++) {
		XTestFakeButtonEvent(d, button, True, 0);
		XTestFakeButtonEvent(d, button, False, 0);
	}
	XFlush(d);
}

static int inject_key(Display *d, unsigned int keysym, int press) {
	KeyCode kc = XKeysymToKeycode(d, keysym);
	if (kc == 0) return -1;
	XTestFakeKeyEvent(d, kc, press, 0);
	XFlush(d);
	return 0;
}
*/
import "C"
import (
	"fmt"
	"log"
	"sync"
	"unsafe"

	"deskmirror/internal/types"
)

// XTest injects synthetic events into an X server.
type XTest struct {
	mu sync.Mutex
	d  *C.Display
}

var _ types.Injector = (*XTest)(nil)

// NewXTest opens display (empty for $DISPLAY).
func NewXTest(display string) (*XTest, error) {
	var cDisplay *C.char
	if display != "" {
		cDisplay = C.CString(display)
		defer C.free(unsafe.Pointer(cDisplay))
	}
	d := C.inject_open(cDisplay)
	if d == nil {
		return nil, fmt.Errorf("inject: cannot open display %q", display)
	}
	return &XTest{d: d}, nil
}

func (x *XTest) key(code uint8, press int) {
	ks := Keysym(code)
	if ks == 0 {
		log.Printf("inject: unmapped key code %d", code)
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.d == nil {
		return
	}
	if C.inject_key(x.d, C.uint(ks), C.int(press)) != 0 {
		log.Printf("inject: no keycode for keysym %#x", ks)
	}
}

func (x *XTest) KeyDown(code uint8) { x.key(code, 1) }
func (x *XTest) KeyUp(code uint8)   { x.key(code, 0) }

func (x *XTest) button(b uint8, press int) {
	n, ok := x11Button(b)
	if !ok {
		log.Printf("inject: unknown mouse button %d", b)
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.d != nil {
		C.inject_button(x.d, C.int(n), C.int(press))
	}
}

func (x *XTest) MouseButtonDown(b uint8) { x.button(b, 1) }
func (x *XTest) MouseButtonUp(b uint8)   { x.button(b, 0) }

func (x *XTest) Scroll(dy int) {
	btn, n := 5, dy
	if dy < 0 {
		btn, n = 4, -dy
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.d != nil && n > 0 {
		C.inject_click(x.d, C.int(btn), C.int(n))
	}
}

func (x *XTest) MoveTo(px, py int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.d != nil {
		C.inject_move(x.d, C.int(px), C.int(py))
	}
}

func (x *XTest) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.d != nil {
		C.XCloseDisplay(x.d)
		x.d = nil
	}
}
