package exchange

import (
	"context"
	"sync/atomic"
)

// Future is settled once, either with the response or with an *Error.
type Future struct {
	done    chan struct{}
	settled atomic.Bool

	resp *Response
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done is closed when the future is settled.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the future is settled or ctx is done. A done ctx does
// not affect the exchange.
func (f *Future) Await(ctx context.Context) (*Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result does not block: it returns ErrPending until the future is settled.
func (f *Future) Result() (*Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	default:
		return nil, ErrPending
	}
}

func (f *Future) complete(resp *Response) bool {
	if !f.settled.CompareAndSwap(false, true) {
		return false
	}
	f.resp = resp
	close(f.done)
	return true
}

func (f *Future) fail(err error) bool {
	if !f.settled.CompareAndSwap(false, true) {
		return false
	}
	f.err = err
	close(f.done)
	return true
}
