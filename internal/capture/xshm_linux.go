//go:build linux && cgo

package capture

/*
#cgo pkg-config: x11 xext xfixes
#include <X11/Xlib.h>
#include <X11/Xutil.h>
#include <X11/extensions/XShm.h>
#include <X11/extensions/Xfixes.h>
#include <sys/ipc.h>
#include <sys/shm.h>
#include <stdlib.h>
#include <string.h>

typedef struct {
	Display *dpy;
	Window root;
	XShmSegmentInfo seg;
	XImage *img;
	int width;
	int height;
	int attached;
} shm_grabber;

static void shm_free(shm_grabber *g) {
	if (!g) return;
	if (g->attached) XShmDetach(g->dpy, &g->seg);
	if (g->seg.shmaddr && g->seg.shmaddr != (char*)-1) shmdt(g->seg.shmaddr);
	if (g->img) {
		// data is shm memory; XDestroyImage must not free it.
		g->img->data = NULL;
		XDestroyImage(g->img);
	}
	if (g->dpy) XCloseDisplay(g->dpy);
	free(g);
}

static shm_grabber* shm_open(const char *name) {
	shm_grabber *g = calloc(1, sizeof(*g));
	if (!g) return NULL;
	if (!(g->dpy = XOpenDisplay(name))) goto fail;

	int scr = DefaultScreen(g->dpy);
	g->root = RootWindow(g->dpy, scr);
	g->width = DisplayWidth(g->dpy, scr);
	g->height = DisplayHeight(g->dpy, scr);

	g->img = XShmCreateImage(g->dpy, DefaultVisual(g->dpy, scr), DefaultDepth(g->dpy, scr),
		ZPixmap, NULL, &g->seg, g->width, g->height);
	if (!g->img) goto fail;

	g->seg.shmid = shmget(IPC_PRIVATE, g->img->bytes_per_line * g->img->height, IPC_CREAT | 0600);
	if (g->seg.shmid < 0) goto fail;
	g->seg.shmaddr = shmat(g->seg.shmid, NULL, 0);
	// Mark for removal now; the segment lives until the last detach.
	shmctl(g->seg.shmid, IPC_RMID, NULL);
	if (g->seg.shmaddr == (char*)-1) goto fail;
	g->img->data = g->seg.shmaddr;
	g->seg.readOnly = False;

	if (!XShmAttach(g->dpy, &g->seg)) goto fail;
	g->attached = 1;
	return g;

fail:
	shm_free(g);
	return NULL;
}

// 0 ok, -1 grab failed, -2 the root window no longer matches the image.
static int shm_grab(shm_grabber *g) {
	int scr = DefaultScreen(g->dpy);
	if (DisplayWidth(g->dpy, scr) != g->width || DisplayHeight(g->dpy, scr) != g->height)
		return -2;
	if (!XShmGetImage(g->dpy, g->root, g->img, 0, 0, AllPlanes))
		return -1;
	XSync(g->dpy, False);
	return 0;
}

static int shm_bpp(shm_grabber *g) { return g->img->bits_per_pixel; }

static unsigned char blend(unsigned char src, unsigned char dst, unsigned a) {
	return (unsigned char)((src * a + dst * (255 - a)) / 255);
}

// Draws the XFixes pointer image over the BGRX frame.
static void shm_draw_cursor(shm_grabber *g) {
	XFixesCursorImage *cur = XFixesGetCursorImage(g->dpy);
	if (!cur) return;
	int ox = cur->x - cur->xhot, oy = cur->y - cur->yhot;
	for (int y = 0; y < (int)cur->height; y++) {
		int py = oy + y;
		if (py < 0 || py >= g->height) continue;
		unsigned char *row = (unsigned char*)g->img->data + py * g->img->bytes_per_line;
		for (int x = 0; x < (int)cur->width; x++) {
			int px = ox + x;
			if (px < 0 || px >= g->width) continue;
			unsigned long argb = cur->pixels[y * cur->width + x];
			unsigned a = (argb >> 24) & 0xff;
			if (!a) continue;
			unsigned char *d = row + px * 4;
			d[0] = blend(argb & 0xff, d[0], a);
			d[1] = blend((argb >> 8) & 0xff, d[1], a);
			d[2] = blend((argb >> 16) & 0xff, d[2], a);
		}
	}
	XFree(cur);
}
*/
import "C"
import (
	"errors"
	"fmt"
	"log"
	"unsafe"

	"deskmirror/internal/types"
)

var errResized = errors.New("capture: X root window resized")

// XShm grabs the X11 root window through a shared-memory image.
type XShm struct {
	g      *C.shm_grabber
	cursor bool
}

// NewXShm opens display (empty for $DISPLAY). When cursor is set the
// pointer image is composited into every frame.
func NewXShm(display string, cursor bool) (*XShm, error) {
	var cDisplay *C.char
	if display != "" {
		cDisplay = C.CString(display)
		defer C.free(unsafe.Pointer(cDisplay))
	}
	g := C.shm_open(cDisplay)
	if g == nil {
		return nil, fmt.Errorf("capture: XShm init failed on display %q", display)
	}
	if bpp := int(C.shm_bpp(g)); bpp != 32 {
		C.shm_free(g)
		return nil, fmt.Errorf("capture: XShm needs a 32-bit visual, got %d bpp", bpp)
	}
	log.Printf("capture: XShm %dx%d", int(g.width), int(g.height))
	return &XShm{g: g, cursor: cursor}, nil
}

// XShmFactory returns a Factory for the given display.
func XShmFactory(display string, cursor bool) Factory {
	return func() (types.MediaCapturer, error) {
		return NewXShm(display, cursor)
	}
}

func (x *XShm) Width() int  { return int(x.g.width) }
func (x *XShm) Height() int { return int(x.g.height) }

// Grab returns a BGRA frame backed by the shared-memory segment.
func (x *XShm) Grab() (*types.Frame, error) {
	switch C.shm_grab(x.g) {
	case 0:
	case -2:
		return nil, errResized
	default:
		return nil, errors.New("capture: XShmGetImage failed")
	}
	if x.cursor {
		C.shm_draw_cursor(x.g)
	}
	stride := int(x.g.img.bytes_per_line)
	h := int(x.g.height)
	return &types.Frame{
		Data:   unsafe.Slice((*byte)(unsafe.Pointer(x.g.img.data)), stride*h),
		Width:  int(x.g.width),
		Height: h,
		Stride: stride,
		PixFmt: types.PixFmtBGRA,
	}, nil
}

func (x *XShm) Close() {
	if x.g != nil {
		C.shm_free(x.g)
		x.g = nil
	}
}
