//go:build cgo && vpx

package compress

/*
#cgo pkg-config: vpx
#include <vpx/vpx_encoder.h>
#include <vpx/vp8cx.h>
#include <vpx/vpx_decoder.h>
#include <vpx/vp8dx.h>
#include <stdlib.h>
#include <string.h>

typedef struct {
	vpx_codec_ctx_t ctx;
	vpx_image_t img;
	vpx_codec_iter_t iter;
	unsigned char *buf;
	int width;
	int height;
	int64_t pts;
} VpxEncoder;

static VpxEncoder* vpx_enc_init(int width, int height, int fps, int bitrate_kbps) {
	VpxEncoder *e = (VpxEncoder*)calloc(1, sizeof(VpxEncoder));
	if (!e) return NULL;

	vpx_codec_enc_cfg_t cfg;
	if (vpx_codec_enc_config_default(vpx_codec_vp8_cx(), &cfg, 0) != VPX_CODEC_OK) {
		free(e);
		return NULL;
	}
	cfg.g_w = width;
	cfg.g_h = height;
	cfg.g_timebase.num = 1;
	cfg.g_timebase.den = fps;
	cfg.g_lag_in_frames = 0;
	cfg.g_threads = 2;
	cfg.rc_end_usage = VPX_CBR;
	cfg.rc_target_bitrate = bitrate_kbps;
	cfg.kf_mode = VPX_KF_AUTO;
	cfg.kf_max_dist = fps * 10;

	if (vpx_codec_enc_init(&e->ctx, vpx_codec_vp8_cx(), &cfg, 0) != VPX_CODEC_OK) {
		free(e);
		return NULL;
	}
	vpx_codec_control(&e->ctx, VP8E_SET_CPUUSED, 16);

	int cw = (width + 1) / 2, ch = (height + 1) / 2;
	e->buf = (unsigned char*)malloc(width * height + 2 * cw * ch);
	if (!e->buf) {
		vpx_codec_destroy(&e->ctx);
		free(e);
		return NULL;
	}

	// Describe the contiguous I420 layout by hand: vpx_img_wrap rounds odd
	// widths up, which does not match tightly packed planes.
	vpx_img_wrap(&e->img, VPX_IMG_FMT_I420, width, height, 1, e->buf);
	e->img.planes[VPX_PLANE_Y] = e->buf;
	e->img.planes[VPX_PLANE_U] = e->buf + width * height;
	e->img.planes[VPX_PLANE_V] = e->buf + width * height + cw * ch;
	e->img.stride[VPX_PLANE_Y] = width;
	e->img.stride[VPX_PLANE_U] = cw;
	e->img.stride[VPX_PLANE_V] = cw;

	e->width = width;
	e->height = height;
	return e;
}

static int vpx_enc_encode(VpxEncoder *e, int force_key) {
	vpx_enc_frame_flags_t flags = force_key ? VPX_EFLAG_FORCE_KF : 0;
	if (vpx_codec_encode(&e->ctx, &e->img, e->pts++, 1, flags, VPX_DL_REALTIME) != VPX_CODEC_OK) {
		return -1;
	}
	e->iter = NULL;
	return 0;
}

// Returns the next frame packet produced by the last encode, or NULL.
static const void* vpx_enc_next(VpxEncoder *e, size_t *size) {
	const vpx_codec_cx_pkt_t *pkt;
	while ((pkt = vpx_codec_get_cx_data(&e->ctx, &e->iter)) != NULL) {
		if (pkt->kind == VPX_CODEC_CX_FRAME_PKT) {
			*size = pkt->data.frame.sz;
			return pkt->data.frame.buf;
		}
	}
	return NULL;
}

static void vpx_enc_destroy(VpxEncoder *e) {
	if (!e) return;
	vpx_codec_destroy(&e->ctx);
	free(e->buf);
	free(e);
}

typedef struct {
	vpx_codec_ctx_t ctx;
	vpx_codec_iter_t iter;
} VpxDecoder;

static VpxDecoder* vpx_dec_init(void) {
	VpxDecoder *d = (VpxDecoder*)calloc(1, sizeof(VpxDecoder));
	if (!d) return NULL;
	if (vpx_codec_dec_init(&d->ctx, vpx_codec_vp8_dx(), NULL, 0) != VPX_CODEC_OK) {
		free(d);
		return NULL;
	}
	return d;
}

static int vpx_dec_decode(VpxDecoder *d, const unsigned char *data, unsigned int size) {
	if (vpx_codec_decode(&d->ctx, data, size, NULL, 0) != VPX_CODEC_OK) {
		return -1;
	}
	d->iter = NULL;
	return 0;
}

static vpx_image_t* vpx_dec_next(VpxDecoder *d) {
	return vpx_codec_get_frame(&d->ctx, &d->iter);
}

static void vpx_dec_destroy(VpxDecoder *d) {
	if (!d) return;
	vpx_codec_destroy(&d->ctx);
	free(d);
}
*/
import "C"
import (
	"fmt"
	"unsafe"

	"deskmirror/internal/colorconv"
)

type vpxEncoder struct {
	e      *C.VpxEncoder
	size   int
	frames int
	pkts   [][]byte
}

func newVideoEncoder(o Options) (Encoder, error) {
	fps := o.FPS
	if fps <= 0 {
		fps = 20
	}
	kbps := o.Level
	if kbps <= 0 {
		kbps = VP8.DefaultLevel()
	}
	e := C.vpx_enc_init(C.int(o.Width), C.int(o.Height), C.int(fps), C.int(kbps))
	if e == nil {
		return nil, fmt.Errorf("vp8 encoder init failed (%dx%d)", o.Width, o.Height)
	}
	return &vpxEncoder{e: e, size: o.FrameSize()}, nil
}

// Encode takes one contiguous I420 frame. The first frame is forced to be a
// keyframe so the viewer can start from it.
func (v *vpxEncoder) Encode(frame []byte) ([][]byte, error) {
	if len(frame) != v.size {
		return nil, fmt.Errorf("vp8 encode: frame is %d bytes, want %d", len(frame), v.size)
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(v.e.buf)), v.size), frame)

	force := 0
	if v.frames == 0 {
		force = 1
	}
	v.frames++
	if C.vpx_enc_encode(v.e, C.int(force)) != 0 {
		return nil, fmt.Errorf("vp8 encode failed")
	}

	v.pkts = v.pkts[:0]
	for {
		var size C.size_t
		p := C.vpx_enc_next(v.e, &size)
		if p == nil {
			break
		}
		v.pkts = append(v.pkts, C.GoBytes(p, C.int(size)))
	}
	return v.pkts, nil
}

func (v *vpxEncoder) Close() error {
	C.vpx_enc_destroy(v.e)
	v.e = nil
	return nil
}

type vpxDecoder struct {
	d      *C.VpxDecoder
	width  int
	height int
	out    []byte
}

func newVideoDecoder(o Options) (Decoder, error) {
	d := C.vpx_dec_init()
	if d == nil {
		return nil, fmt.Errorf("vp8 decoder init failed")
	}
	return &vpxDecoder{d: d, width: o.Width, height: o.Height}, nil
}

// DecodePlanar decodes one packet and returns the last picture it produced,
// or nil if the codec produced none. Planes point into decoder memory and
// are valid until the next call.
func (v *vpxDecoder) DecodePlanar(packet []byte) (*colorconv.Planar, error) {
	if len(packet) == 0 {
		return nil, fmt.Errorf("vp8 decode: empty packet")
	}
	if C.vpx_dec_decode(v.d, (*C.uchar)(unsafe.Pointer(&packet[0])), C.uint(len(packet))) != 0 {
		return nil, fmt.Errorf("vp8 decode failed")
	}
	var last *C.vpx_image_t
	for img := C.vpx_dec_next(v.d); img != nil; img = C.vpx_dec_next(v.d) {
		last = img
	}
	if last == nil {
		return nil, nil
	}

	w, h := int(last.d_w), int(last.d_h)
	ys, uvs := int(last.stride[0]), int(last.stride[1])
	ch := (h + 1) / 2
	return &colorconv.Planar{
		Y:        unsafe.Slice((*byte)(unsafe.Pointer(last.planes[0])), ys*h),
		U:        unsafe.Slice((*byte)(unsafe.Pointer(last.planes[1])), uvs*ch),
		V:        unsafe.Slice((*byte)(unsafe.Pointer(last.planes[2])), uvs*ch),
		YStride:  ys,
		UVStride: uvs,
		Width:    w,
		Height:   h,
	}, nil
}

// Decode returns the picture cropped to the session size as contiguous I420.
func (v *vpxDecoder) Decode(packet []byte) ([]byte, error) {
	p, err := v.DecodePlanar(packet)
	if err != nil || p == nil {
		return nil, err
	}
	if p.Width < v.width || p.Height < v.height {
		return nil, fmt.Errorf("vp8 decode: picture %dx%d smaller than session %dx%d", p.Width, p.Height, v.width, v.height)
	}
	cw, ch := (v.width+1)/2, (v.height+1)/2
	size := v.width*v.height + 2*cw*ch
	if cap(v.out) < size {
		v.out = make([]byte, size)
	}
	v.out = v.out[:size]

	k := 0
	for y := 0; y < v.height; y++ {
		k += copy(v.out[k:k+v.width], p.Y[y*p.YStride:])
	}
	for _, plane := range [][]byte{p.U, p.V} {
		for y := 0; y < ch; y++ {
			k += copy(v.out[k:k+cw], plane[y*p.UVStride:])
		}
	}
	return v.out, nil
}

func (v *vpxDecoder) Close() error {
	C.vpx_dec_destroy(v.d)
	v.d = nil
	return nil
}
