package coordinator

import "context"

// Dispatcher delivers notification callbacks to the embedder's context.
type Dispatcher interface {
	Post(fn func())
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(fn func())

// Post calls d(fn).
func (d DispatcherFunc) Post(fn func()) { d(fn) }

// Inline returns a Dispatcher that runs callbacks on the posting goroutine.
func Inline() Dispatcher {
	return DispatcherFunc(func(fn func()) { fn() })
}

// Queue buffers callbacks until the owner drains them on its own goroutine.
type Queue struct {
	ch chan func()
}

// NewQueue creates a Queue holding up to size pending callbacks. Post
// blocks while the queue is full.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{ch: make(chan func(), size)}
}

// Post enqueues fn.
func (q *Queue) Post(fn func()) { q.ch <- fn }

// Len returns the number of pending callbacks.
func (q *Queue) Len() int { return len(q.ch) }

// Drain runs every pending callback and returns how many ran.
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case fn := <-q.ch:
			fn()
			n++
		default:
			return n
		}
	}
}

// Run executes callbacks as they arrive until ctx is done.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-q.ch:
			fn()
		}
	}
}
