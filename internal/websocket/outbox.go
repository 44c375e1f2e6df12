package websocket

import (
	"sync"

	"github.com/abrezinsky/auctionhouse/internal/models"
)

// outbox is a bounded per-connection queue. When full, the oldest queued
// event is dropped to make room.
type outbox struct {
	mu      sync.Mutex
	ch      chan models.Event
	closed  bool
	dropped uint64
}

func newOutbox(size int) *outbox {
	if size < 1 {
		size = 1
	}
	return &outbox{ch: make(chan models.Event, size)}
}

// push enqueues ev and reports whether the outbox is still open
func (o *outbox) push(ev models.Event) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}
	select {
	case o.ch <- ev:
		return true
	default:
	}

	select {
	case <-o.ch:
		o.dropped++
	default:
	}
	select {
	case o.ch <- ev:
	default:
		o.dropped++
	}
	return true
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

func (o *outbox) droppedCount() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}
