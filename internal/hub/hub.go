// Package hub fans frame results from the single pipeline runner out
// to subscriber sessions. Capture and inference run once per tick no
// matter how many viewers are connected.
package hub

import (
	"sync"
	"sync/atomic"

	"github.com/sylwesterdigital/webcam-monocular-depth/internal/types"
)

// Subscriber is one session's frame mailbox. It holds at most one
// undelivered frame: a session that cannot keep up sees the stale frame
// replaced, never a growing queue.
type Subscriber struct {
	ch chan *types.FrameResult
}

// Frames returns the mailbox channel.
func (s *Subscriber) Frames() <-chan *types.FrameResult {
	return s.ch
}

type Hub struct {
	mu      sync.Mutex
	subs    map[*Subscriber]struct{}
	dropped atomic.Uint64
}

func New() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{ch: make(chan *types.FrameResult, 1)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// Publish offers the frame to every subscriber without blocking. A full
// mailbox has its stale frame evicted first.
func (h *Hub) Publish(fr *types.FrameResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- fr:
			continue
		default:
		}
		select {
		case <-s.ch:
			h.dropped.Add(1)
		default:
		}
		select {
		case s.ch <- fr:
		default:
		}
	}
}

// Count returns the number of subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns the number of stale frames evicted under
// backpressure.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
