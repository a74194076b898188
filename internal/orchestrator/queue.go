package orchestrator

import (
	"context"
	"sync"

	"github.com/vocegate/vocegate/internal/protocol"
)

// upstreamQueue is a per-session strict-FIFO of already-constructed protocol
// events awaiting serialization to the model-service duplex stream. Capacity
// is unbounded in principle; real backpressure lives in audioQueue, whose
// drop-oldest policy bounds the rate at which audioInput events are ever
// produced in the first place.
type upstreamQueue struct {
	mu     sync.Mutex
	items  []protocol.Event
	notify chan struct{} // buffered(1): "queue became non-empty"
	done   chan struct{}
	closed bool
}

func newUpstreamQueue() *upstreamQueue {
	return &upstreamQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// enqueue appends evt to the tail of the queue and wakes one waiter. It
// returns false without appending if the queue has been closed.
func (q *upstreamQueue) enqueue(evt protocol.Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, evt)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// next blocks until an event is available, the queue is closed, or ctx is
// done. It pops the item at index 0, preserving enqueue order. The second
// return value is false once the queue is closed and drained.
func (q *upstreamQueue) next(ctx context.Context) (protocol.Event, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			evt := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return evt, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return protocol.Event{}, false
		}

		select {
		case <-q.notify:
			continue
		case <-q.done:
			// Drain whatever was enqueued before close completed its race.
			q.mu.Lock()
			if len(q.items) > 0 {
				evt := q.items[0]
				q.items = q.items[1:]
				q.mu.Unlock()
				return evt, true
			}
			q.mu.Unlock()
			return protocol.Event{}, false
		case <-ctx.Done():
			return protocol.Event{}, false
		}
	}
}

// close marks the queue closed and wakes any blocked reader. Idempotent.
func (q *upstreamQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.done)
}
