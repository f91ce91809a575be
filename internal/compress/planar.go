package compress

import "deskmirror/internal/colorconv"

// PlanarDecoder is implemented by video decoders that can hand out the
// decoded picture without copying. The picture may be larger than the
// session size and must be cropped by the caller.
type PlanarDecoder interface {
	DecodePlanar(packet []byte) (*colorconv.Planar, error)
}
