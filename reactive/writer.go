package reactive

import (
	"context"
	"io"
	"sync"
)

// WriterSubscriber copies every chunk it receives into w. It asks for batch
// chunks at a time and tops the demand up from inside OnNext once the batch
// is used up.
type WriterSubscriber struct {
	w     io.Writer
	batch int64

	mu       sync.Mutex
	sub      Subscription
	left     int64
	written  int64
	err      error
	finished bool
	done     chan struct{}
}

func NewWriterSubscriber(w io.Writer, batch int64) *WriterSubscriber {
	if batch <= 0 {
		batch = 1
	}
	return &WriterSubscriber{w: w, batch: batch, done: make(chan struct{})}
}

func (s *WriterSubscriber) OnSubscribe(sub Subscription) {
	s.mu.Lock()
	if s.sub != nil {
		s.mu.Unlock()
		sub.Cancel()
		return
	}
	s.sub = sub
	s.left = s.batch
	s.mu.Unlock()
	sub.Request(s.batch)
}

func (s *WriterSubscriber) OnNext(b []byte) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	n, err := s.w.Write(b)

	s.mu.Lock()
	s.written += int64(n)
	if err != nil {
		sub := s.sub
		s.finishLocked(err)
		s.mu.Unlock()
		sub.Cancel()
		return
	}
	s.left--
	refill := s.left == 0
	if refill {
		s.left = s.batch
	}
	sub := s.sub
	s.mu.Unlock()

	if refill {
		sub.Request(s.batch)
	}
}

func (s *WriterSubscriber) OnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(err)
}

func (s *WriterSubscriber) OnComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(nil)
}

func (s *WriterSubscriber) finishLocked(err error) {
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	close(s.done)
}

// Done is closed once the stream terminated.
func (s *WriterSubscriber) Done() <-chan struct{} { return s.done }

// Wait blocks until the stream terminated and returns the stream error or the
// first write error.
func (s *WriterSubscriber) Wait(ctx context.Context) (written int64, err error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		s.mu.Lock()
		sub := s.sub
		s.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}
		return s.Written(), ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written, s.err
}

func (s *WriterSubscriber) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}
