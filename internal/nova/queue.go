package nova

import (
	"context"
	"io"
	"sync"
)

type queueItem struct {
	payload []byte
	// evictable marks audio chunk entries, which may be dropped oldest-first
	// once the configured capacity is reached. Control events are never
	// evicted.
	evictable bool
}

// eventQueue is the per-session FIFO of pending outbound wire events.
// Producers (caller goroutines, the inbound loop's tool bridge) push;
// the single outbound drain pump pulls via next.
type eventQueue struct {
	mu        sync.Mutex
	items     []queueItem
	evictable int
	capacity  int

	notify    chan struct{}
	closing   chan struct{}
	closeOnce sync.Once
}

func newEventQueue(audioCapacity int) *eventQueue {
	return &eventQueue{
		capacity: audioCapacity,
		notify:   make(chan struct{}, 1),
		closing:  make(chan struct{}),
	}
}

// push appends an event. It reports whether an older audio chunk was
// evicted to make room. Pushing to a closed queue is a silent no-op; the
// drain pump has already seen or will see io.EOF.
func (q *eventQueue) push(payload []byte, evictable bool) (dropped bool) {
	q.mu.Lock()
	select {
	case <-q.closing:
		q.mu.Unlock()
		return false
	default:
	}
	if evictable && q.capacity > 0 && q.evictable >= q.capacity {
		for i, item := range q.items {
			if item.evictable {
				q.items = append(q.items[:i], q.items[i+1:]...)
				q.evictable--
				dropped = true
				break
			}
		}
	}
	q.items = append(q.items, queueItem{payload: payload, evictable: evictable})
	if evictable {
		q.evictable++
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

func (q *eventQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	if item.evictable {
		q.evictable--
	}
	return item.payload, true
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close signals the drain pump that no further events will arrive. Events
// already queued (including the sessionEnd marker) are still delivered.
func (q *eventQueue) close() {
	q.closeOnce.Do(func() { close(q.closing) })
}

// next blocks until an event is available, the queue closes, or ctx ends.
// After close it drains remaining entries before returning io.EOF.
func (q *eventQueue) next(ctx context.Context) ([]byte, error) {
	for {
		if payload, ok := q.pop(); ok {
			return payload, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.closing:
			if payload, ok := q.pop(); ok {
				return payload, nil
			}
			return nil, io.EOF
		case <-q.notify:
		}
	}
}
