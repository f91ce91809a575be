//go:build !cgo || !vpx

package compress

import "errors"

// ErrVideoUnavailable is returned when the binary was built without libvpx
// (build with -tags vpx and cgo enabled).
var ErrVideoUnavailable = errors.New("compress: vp8 support not compiled in (build with -tags vpx)")

func newVideoEncoder(Options) (Encoder, error) { return nil, ErrVideoUnavailable }

func newVideoDecoder(Options) (Decoder, error) { return nil, ErrVideoUnavailable }
