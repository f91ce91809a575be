// Package colorconv converts between captured 32-bit pixels, packed RGB and
// planar I420 (full-resolution luma, quarter-resolution chroma).
package colorconv

import (
	"errors"
	"fmt"

	"deskmirror/internal/types"
)

var ErrShortBuffer = errors.New("colorconv: buffer too small")

// Layout describes where the colour channels sit in one source pixel.
type Layout struct {
	BytesPerPixel int
	R, G, B       int
}

var (
	BGRA = Layout{BytesPerPixel: 4, R: 2, G: 1, B: 0}
	RGBA = Layout{BytesPerPixel: 4, R: 0, G: 1, B: 2}
	RGB  = Layout{BytesPerPixel: 3, R: 0, G: 1, B: 2}
)

// LayoutOf maps a capture pixel format to its layout.
func LayoutOf(pixFmt int) Layout {
	if pixFmt == types.PixFmtRGBA {
		return RGBA
	}
	return BGRA
}

// PlanarSize is the byte length of a contiguous I420 image.
func PlanarSize(width, height int) int {
	cw, ch := chromaSize(width, height)
	return width*height + 2*cw*ch
}

func chromaSize(width, height int) (int, int) {
	return (width + 1) / 2, (height + 1) / 2
}

func checkSource(src []byte, width, height, stride int, l Layout) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("colorconv: invalid size %dx%d", width, height)
	}
	if stride < width*l.BytesPerPixel {
		return fmt.Errorf("colorconv: stride %d below row size %d", stride, width*l.BytesPerPixel)
	}
	if need := stride*(height-1) + width*l.BytesPerPixel; len(src) < need {
		return fmt.Errorf("%w: source %d < %d", ErrShortBuffer, len(src), need)
	}
	return nil
}

// Pack copies width x height pixels from src (row pitch stride) into dst as
// tightly packed RGB. dst is grown if needed and returned.
func Pack(dst, src []byte, width, height, stride int, l Layout) ([]byte, error) {
	if err := checkSource(src, width, height, stride, l); err != nil {
		return dst, err
	}
	dst = grow(dst, width*height*3)
	k := 0
	for y := 0; y < height; y++ {
		row := src[y*stride:]
		for x := 0; x < width; x++ {
			o := x * l.BytesPerPixel
			dst[k] = row[o+l.R]
			dst[k+1] = row[o+l.G]
			dst[k+2] = row[o+l.B]
			k += 3
		}
	}
	return dst, nil
}

// ToPlanar converts src to contiguous I420 in dst: the Y plane followed by
// the U and V planes. Chroma is sampled from the top-left pixel of each
// 2x2 block.
func ToPlanar(dst, src []byte, width, height, stride int, l Layout) ([]byte, error) {
	if err := checkSource(src, width, height, stride, l); err != nil {
		return dst, err
	}
	dst = grow(dst, PlanarSize(width, height))

	k := 0
	for y := 0; y < height; y++ {
		row := src[y*stride:]
		for x := 0; x < width; x++ {
			o := x * l.BytesPerPixel
			r, g, b := int(row[o+l.R]), int(row[o+l.G]), int(row[o+l.B])
			dst[k] = clamp((66*r+129*g+25*b+128)/256 + 16)
			k++
		}
	}

	cw, ch := chromaSize(width, height)
	u := dst[width*height : width*height+cw*ch]
	v := dst[width*height+cw*ch:]
	k = 0
	for y := 0; y < height; y += 2 {
		row := src[y*stride:]
		for x := 0; x < width; x += 2 {
			o := x * l.BytesPerPixel
			r, g, b := int(row[o+l.R]), int(row[o+l.G]), int(row[o+l.B])
			u[k] = clamp((-38*r-74*g+112*b+128)/256 + 128)
			v[k] = clamp((112*r-94*g-18*b+128)/256 + 128)
			k++
		}
	}
	return dst, nil
}

// Planar is an I420 image whose planes may carry row padding, as produced
// by video decoders.
type Planar struct {
	Y, U, V  []byte
	YStride  int
	UVStride int
	Width    int
	Height   int
}

// SplitPlanar views a contiguous buffer produced by ToPlanar as a Planar.
func SplitPlanar(buf []byte, width, height int) (Planar, error) {
	if len(buf) < PlanarSize(width, height) {
		return Planar{}, fmt.Errorf("%w: planar %d < %d", ErrShortBuffer, len(buf), PlanarSize(width, height))
	}
	cw, ch := chromaSize(width, height)
	ys := width * height
	return Planar{
		Y:        buf[:ys],
		U:        buf[ys : ys+cw*ch],
		V:        buf[ys+cw*ch : ys+2*cw*ch],
		YStride:  width,
		UVStride: cw,
		Width:    width,
		Height:   height,
	}, nil
}

// ToPacked converts p to packed RGB, emitting only the top-left
// cropWidth x cropHeight rectangle. The crop is clamped to p's size, so a
// decoder picture larger than the negotiated display is cut down to it.
func ToPacked(dst []byte, p Planar, cropWidth, cropHeight int) ([]byte, error) {
	cropWidth = min(cropWidth, p.Width)
	cropHeight = min(cropHeight, p.Height)
	if cropWidth <= 0 || cropHeight <= 0 {
		return dst, fmt.Errorf("colorconv: invalid crop %dx%d", cropWidth, cropHeight)
	}
	if len(p.Y) < p.YStride*(cropHeight-1)+cropWidth {
		return dst, fmt.Errorf("%w: luma plane", ErrShortBuffer)
	}
	if need := p.UVStride*((cropHeight-1)/2) + (cropWidth-1)/2 + 1; len(p.U) < need || len(p.V) < need {
		return dst, fmt.Errorf("%w: chroma plane", ErrShortBuffer)
	}
	dst = grow(dst, cropWidth*cropHeight*3)

	k := 0
	for i := 0; i < cropHeight; i++ {
		yrow := p.Y[i*p.YStride:]
		uvo := (i >> 1) * p.UVStride
		for j := 0; j < cropWidth; j++ {
			y := int(yrow[j])
			u := int(p.U[uvo+j>>1]) - 128
			v := int(p.V[uvo+j>>1]) - 128

			dst[k] = clamp(y + (v * 359 >> 8))
			dst[k+1] = clamp(y - (u * 88 >> 8) - (v * 182 >> 8))
			dst[k+2] = clamp(y + (u * 453 >> 8))
			k += 3
		}
	}
	return dst, nil
}

func clamp(x int) byte {
	return byte(max(0, min(255, x)))
}

func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}
