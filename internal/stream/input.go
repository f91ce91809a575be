package stream

import (
	"context"
	"io"
	"sync"

	"github.com/eapache/queue"

	"deskmirror/internal/input"
	"deskmirror/internal/types"
)

// InjectLoop reads input commands from r and replays them on inj until the
// stream fails or ctx is done.
func InjectLoop(ctx context.Context, r io.Reader, inj types.Injector, stats *Stats) error {
	if stats == nil {
		stats = new(Stats)
	}
	dec := input.NewDecoder(r)
	for {
		c, err := dec.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		input.Dispatch(inj, c)
		stats.Commands.Add(1)
	}
}

// Relay queues viewer input commands and writes them to the source from a
// single goroutine, so UI callbacks never block on the network.
type Relay struct {
	mu     sync.Mutex
	q      *queue.Queue
	wake   chan struct{}
	closed bool
	enc    *input.Encoder
	stats  *Stats
}

func NewRelay(w io.Writer, stats *Stats) *Relay {
	if stats == nil {
		stats = new(Stats)
	}
	return &Relay{
		q:     queue.New(),
		wake:  make(chan struct{}, 1),
		enc:   input.NewEncoder(w),
		stats: stats,
	}
}

// Push enqueues c. It never blocks and is a no-op after Run returns.
func (r *Relay) Push(c input.Command) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.q.Add(c)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Pending is the number of queued commands.
func (r *Relay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.q.Length()
}

func (r *Relay) pop() (input.Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.q.Length() == 0 {
		return input.Command{}, false
	}
	return r.q.Remove().(input.Command), true
}

// Run drains the queue until ctx is done or a write fails.
func (r *Relay) Run(ctx context.Context) error {
	defer func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
	}()
	for {
		for {
			c, ok := r.pop()
			if !ok {
				break
			}
			sent, err := r.enc.Encode(c)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			if sent {
				r.stats.Commands.Add(1)
			} else {
				r.stats.Suppressed.Add(1)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.wake:
		}
	}
}

// Held reports keys the relay has sent key-downs for without a key-up.
// Call it only after Run has returned.
func (r *Relay) Held() []uint8 { return r.enc.Held() }
