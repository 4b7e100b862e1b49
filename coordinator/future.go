package coordinator

import (
	"context"

	"github.com/kbukum/nodeflow/engine"
)

// Future is the pending result of an asynchronous pass.
type Future struct {
	done chan struct{}
	res  engine.Result
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func completedFuture(res engine.Result) *Future {
	f := newFuture()
	f.complete(res)
	return f
}

func (f *Future) complete(res engine.Result) {
	f.res = res
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the pass finishes or ctx is done. A done ctx does not
// cancel the pass.
func (f *Future) Wait(ctx context.Context) (engine.Result, error) {
	select {
	case <-f.done:
		return f.res, nil
	case <-ctx.Done():
		return engine.Result{}, ctx.Err()
	}
}

// Result returns the result without blocking.
func (f *Future) Result() (engine.Result, bool) {
	select {
	case <-f.done:
		return f.res, true
	default:
		return engine.Result{}, false
	}
}
