// Package queue hands frames from transport callbacks to the render loop.
//
// A single mutex guards both the queued handles and the flush path, so a
// flush never overlaps a push or a pop and never leaves a partially drained
// queue visible to either side.
package queue

import (
	"context"
	"sync"
	"time"

	"framepipe/processing/frame"
)

type FrameQueue struct {
	mu     sync.Mutex
	frames []*frame.Handle
	closed bool

	// notify carries at most one pending wake-up for a waiting TryPop.
	notify chan struct{}
}

func New() *FrameQueue {
	return &FrameQueue{
		notify: make(chan struct{}, 1),
	}
}

// Push appends h without blocking. Once the queue is closed the handle is
// released on the spot and Push reports false.
func (q *FrameQueue) Push(h *frame.Handle) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		h.Release()
		return false
	}
	q.frames = append(q.frames, h)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// TryPop returns the head of the queue. When the queue is empty it waits up to
// timeout for a push; (nil, false) means "try again", not end of stream.
func (q *FrameQueue) TryPop(ctx context.Context, timeout time.Duration) (*frame.Handle, bool) {
	if h, ok := q.pop(); ok {
		return h, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.notify:
			if h, ok := q.pop(); ok {
				return h, true
			}
		case <-timer.C:
			return q.pop()
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (q *FrameQueue) pop() (*frame.Handle, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return nil, false
	}
	h := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	if len(q.frames) == 0 {
		q.frames = nil
	}
	return h, true
}

// Flush removes and releases every queued handle and returns how many there
// were. All releases complete before Flush returns.
func (q *FrameQueue) Flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drainLocked()
}

// Close flushes the queue and makes every later Push release its handle
// immediately.
func (q *FrameQueue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return q.drainLocked()
}

func (q *FrameQueue) drainLocked() int {
	n := len(q.frames)
	for i, h := range q.frames {
		h.Release()
		q.frames[i] = nil
	}
	q.frames = nil
	return n
}

func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

func (q *FrameQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
