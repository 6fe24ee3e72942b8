package reactive

import (
	"io"
	"sync"
)

// SubscriberReader turns a publisher into an io.Reader. At most batch chunks
// are requested ahead of the reader, so OnNext never blocks the publisher.
// Read must be called from one goroutine.
type SubscriberReader struct {
	ch   chan []byte
	done chan struct{}
	cur  []byte

	mu     sync.Mutex
	sub    Subscription
	err    error
	closed bool
}

var (
	_ Subscriber    = (*SubscriberReader)(nil)
	_ io.ReadCloser = (*SubscriberReader)(nil)
)

func NewSubscriberReader(batch int) *SubscriberReader {
	if batch <= 0 {
		batch = 1
	}
	return &SubscriberReader{
		ch:   make(chan []byte, batch),
		done: make(chan struct{}),
	}
}

func (r *SubscriberReader) OnSubscribe(sub Subscription) {
	r.mu.Lock()
	if r.sub != nil || r.closed {
		r.mu.Unlock()
		sub.Cancel()
		return
	}
	r.sub = sub
	r.mu.Unlock()
	sub.Request(int64(cap(r.ch)))
}

func (r *SubscriberReader) OnNext(b []byte) {
	select {
	case r.ch <- b:
	default:
		panic("assertion error: chunk beyond requested")
	}
}

func (r *SubscriberReader) OnError(err error) { r.finish(err) }
func (r *SubscriberReader) OnComplete()       { r.finish(io.EOF) }

func (r *SubscriberReader) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	r.err = err
	close(r.done)
}

func (r *SubscriberReader) Read(p []byte) (int, error) {
	for len(r.cur) == 0 {
		select {
		case b := <-r.ch:
			r.take(b)
		case <-r.done:
			// чанки, полученные до терминального сигнала, отдаём первыми
			select {
			case b := <-r.ch:
				r.take(b)
			default:
				return 0, r.err
			}
		}
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}

func (r *SubscriberReader) take(b []byte) {
	r.cur = b
	r.mu.Lock()
	sub := r.sub
	r.mu.Unlock()
	sub.Request(1)
}

// Close cancels the subscription if the stream is still running.
func (r *SubscriberReader) Close() error {
	r.mu.Lock()
	sub := r.sub
	running := !r.closed && r.err == nil
	r.closed = true
	r.mu.Unlock()
	if running && sub != nil {
		sub.Cancel()
	}
	return nil
}
