// Package stream runs the per-session pumps: the source's frame sender and
// input injector, and the viewer's frame receiver, input relay and render
// notifier.
package stream

import (
	"fmt"
	"sync/atomic"
)

// Stats are counters shared by the pumps of one session. They are read by
// the metrics collectors and the periodic stats log line.
type Stats struct {
	Captures   atomic.Int64 // frames captured
	Unchanged  atomic.Int64 // captures identical to the previous frame
	Packets    atomic.Int64 // frame packets written or read
	Bytes      atomic.Int64 // frame payload bytes written or read
	Throttled  atomic.Int64 // pauses after a large payload
	Commands   atomic.Int64 // input commands sent or injected
	Suppressed atomic.Int64 // key-down repeats dropped by the relay
}

func (s *Stats) String() string {
	return fmt.Sprintf("captures=%d unchanged=%d packets=%d bytes=%d throttled=%d commands=%d suppressed=%d",
		s.Captures.Load(), s.Unchanged.Load(), s.Packets.Load(), s.Bytes.Load(),
		s.Throttled.Load(), s.Commands.Load(), s.Suppressed.Load())
}
