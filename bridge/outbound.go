package bridge

import (
	"sync"

	"github.com/ozontech/h2duplex/reactive"
)

// Outbound subscribes to a request body producer and serves its bytes to the
// transport, which pulls them with FillTransportBuffer when it has send
// window. At most one chunk is requested at a time and only while the queued
// bytes are below the ceiling.
//
// All methods may be called from any goroutine. Producer demand is never
// signalled with the lock held, so a producer emitting from inside Request
// re-enters the bridge safely.
type Outbound struct {
	mu          sync.Mutex
	window      *Window
	queue       chunkQueue
	sub         reactive.Subscription
	outstanding bool
	finished    bool
	cancelled   bool
	err         error

	ready func()
}

var _ reactive.Subscriber = (*Outbound)(nil)

// NewOutbound creates a bridge buffering up to ceiling bytes. ready is called
// without the lock held whenever the producer emitted, finished or failed.
func NewOutbound(ceiling int, ready func()) *Outbound {
	if ready == nil {
		ready = func() {}
	}
	return &Outbound{
		window: NewWindow(DirOutbound, ceiling),
		ready:  ready,
	}
}

func (o *Outbound) OnSubscribe(s reactive.Subscription) {
	o.mu.Lock()
	if o.sub != nil {
		o.mu.Unlock()
		s.Cancel()
		panic(ErrDoubleSubscribe)
	}
	o.sub = s
	if o.cancelled {
		o.mu.Unlock()
		s.Cancel()
		return
	}
	more := o.wantMoreLocked()
	o.mu.Unlock()

	if more {
		s.Request(1)
	}
}

func (o *Outbound) OnNext(b []byte) {
	o.mu.Lock()
	if o.cancelled || o.finished || o.err != nil {
		o.mu.Unlock()
		return
	}
	if !o.outstanding {
		o.mu.Unlock()
		panic(ErrUnrequestedChunk)
	}
	o.outstanding = false
	if len(b) > 0 {
		if err := o.window.reserve(len(b)); err != nil {
			o.mu.Unlock()
			panic(err)
		}
		o.queue.Push(b)
	}
	more := o.wantMoreLocked()
	sub := o.sub
	o.mu.Unlock()

	if more {
		sub.Request(1)
	}
	o.ready()
}

// OnError latches the first producer error. Queued bytes are kept, the
// transport sees the error on its next pull.
func (o *Outbound) OnError(err error) {
	o.mu.Lock()
	if o.cancelled || o.finished || o.err != nil {
		o.mu.Unlock()
		return
	}
	o.err = err
	o.mu.Unlock()
	o.ready()
}

func (o *Outbound) OnComplete() {
	o.mu.Lock()
	if o.cancelled || o.finished || o.err != nil {
		o.mu.Unlock()
		return
	}
	o.finished = true
	o.mu.Unlock()
	o.ready()
}

// FillTransportBuffer copies queued bytes into out. done is true only when
// the queue is drained and the producer finished; a pull that leaves bytes
// behind reports false even if the producer is done. A latched producer error
// is returned before anything is copied.
func (o *Outbound) FillTransportBuffer(out []byte) (n int, done bool, err error) {
	o.mu.Lock()
	switch {
	case o.err != nil:
		err = o.err
		o.mu.Unlock()
		return 0, false, &ProducerError{err}
	case o.cancelled:
		o.mu.Unlock()
		return 0, false, ErrCancelled
	}

	n = o.queue.CopyTo(out)
	if err := o.window.release(n); err != nil {
		o.mu.Unlock()
		panic(err)
	}
	done = o.queue.Empty() && o.finished
	more := o.wantMoreLocked()
	sub := o.sub
	o.mu.Unlock()

	if more {
		sub.Request(1)
	}
	return n, done, nil
}

// Cancel stops the producer and drops whatever it queued.
func (o *Outbound) Cancel() {
	o.mu.Lock()
	if o.cancelled {
		o.mu.Unlock()
		return
	}
	o.cancelled = true
	if err := o.window.release(o.queue.Drop()); err != nil {
		o.mu.Unlock()
		panic(err)
	}
	sub := o.sub
	o.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

// Queued returns the number of bytes waiting for the transport.
func (o *Outbound) Queued() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.window.Queued()
}

// wantMoreLocked reports whether one more chunk should be requested and
// marks it outstanding if so.
func (o *Outbound) wantMoreLocked() bool {
	if o.sub == nil || o.outstanding || o.finished || o.cancelled || o.err != nil || !o.window.Below() {
		return false
	}
	o.outstanding = true
	return true
}
