package calendar

import (
	"sync"

	"focusline/internal/domain"
)

// persistRequest is either a day snapshot to save or, when flushed is
// set, a marker closed once everything queued before it is written.
type persistRequest struct {
	day     domain.Day
	flushed chan struct{}
}

// persistQueue is an unbounded FIFO drained by one worker. push never
// blocks, so it is safe to call while holding the store lock.
type persistQueue struct {
	mu     sync.Mutex
	items  []persistRequest
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newPersistQueue() *persistQueue {
	return &persistQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (q *persistQueue) push(req persistRequest) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, req)
	q.mu.Unlock()
	q.signal()
	return true
}

// pop blocks until an item is available. It returns false once the
// queue is closed and drained.
func (q *persistQueue) pop() (persistRequest, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			req := q.items[0]
			q.items[0] = persistRequest{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return req, true
		}
		if q.closed {
			q.mu.Unlock()
			return persistRequest{}, false
		}
		q.mu.Unlock()
		<-q.wake
	}
}

func (q *persistQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *persistQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
