package stream

import (
	"context"
	"io"

	"deskmirror/internal/colorconv"
	"deskmirror/internal/compress"
	"deskmirror/internal/protocol"
	"deskmirror/internal/types"
)

// Receiver reads frame packets and reconstructs them into a Display.
type Receiver struct {
	r       *protocol.PacketReader
	dec     compress.Decoder
	display *Display
	kind    compress.Kind
	stats   *Stats
	rgb     []byte
	first   bool
}

// NewReceiver builds the viewer-side frame pump. The handshake on r must
// already be done; display carries the negotiated size.
func NewReceiver(r io.Reader, kind compress.Kind, display *Display, stats *Stats) (*Receiver, error) {
	if stats == nil {
		stats = new(Stats)
	}
	w, h := display.Size()
	dec, err := compress.NewDecoder(compress.Options{Kind: kind, Width: w, Height: h})
	if err != nil {
		return nil, types.Errorf(types.CodecError, "new decoder", err)
	}
	return &Receiver{
		r:       protocol.NewPacketReader(r),
		dec:     dec,
		display: display,
		kind:    kind,
		stats:   stats,
		first:   true,
	}, nil
}

// Run applies packets until the stream fails or ctx is done. Every error
// is fatal to the session.
func (rc *Receiver) Run(ctx context.Context) error {
	defer rc.dec.Close()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rc.Step(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// Step reads and applies exactly one packet.
func (rc *Receiver) Step() error {
	pkt, err := rc.r.Next()
	if err != nil {
		return err
	}
	rc.stats.Packets.Add(1)
	rc.stats.Bytes.Add(int64(len(pkt)))

	if !rc.kind.Differential() {
		return rc.stepVideo(pkt)
	}
	frame, err := rc.dec.Decode(pkt)
	if err != nil {
		return types.Errorf(types.CodecError, "decode frame", err)
	}
	if rc.first {
		rc.first = false
		err = rc.display.Load(frame)
	} else {
		err = rc.display.Apply(frame)
	}
	if err != nil {
		return types.Errorf(types.CodecError, "apply frame", err)
	}
	return nil
}

func (rc *Receiver) stepVideo(pkt []byte) error {
	var pic *colorconv.Planar
	if pd, ok := rc.dec.(compress.PlanarDecoder); ok {
		p, err := pd.DecodePlanar(pkt)
		if err != nil {
			return types.Errorf(types.CodecError, "decode video", err)
		}
		pic = p
	} else {
		buf, err := rc.dec.Decode(pkt)
		if err != nil {
			return types.Errorf(types.CodecError, "decode video", err)
		}
		if buf != nil {
			w, h := rc.display.Size()
			p, err := colorconv.SplitPlanar(buf, w, h)
			if err != nil {
				return types.Errorf(types.CodecError, "decode video", err)
			}
			pic = &p
		}
	}
	if pic == nil {
		// Buffered inside the codec; no picture yet.
		return nil
	}
	w, h := rc.display.Size()
	rgb, err := colorconv.ToPacked(rc.rgb[:0], *pic, w, h)
	if err != nil {
		return types.Errorf(types.CodecError, "convert video", err)
	}
	rc.rgb = rgb
	if err := rc.display.Load(rgb); err != nil {
		return types.Errorf(types.CodecError, "apply video", err)
	}
	return nil
}

// RenderLoop hands the display to r every time it changes, until ctx is
// done. Updates arriving while a render is in progress coalesce.
func RenderLoop(ctx context.Context, d *Display, r types.Renderer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.Updated():
			d.View(r.Render)
		}
	}
}
