package reactive

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

const maxEmptyReads = 100

// FromReader returns a publisher reading r in chunks of up to chunkSize
// bytes. Reads run on a goroutine started by the first Request and only while
// demand is outstanding, so a slow consumer stops the reads. The publisher
// can be subscribed once.
func FromReader(r io.Reader, chunkSize int) Publisher {
	if chunkSize <= 0 {
		panic("assertion error")
	}
	return &readerPublisher{r: r, chunkSize: chunkSize}
}

type readerPublisher struct {
	once      sync.Once
	r         io.Reader
	chunkSize int
}

func (p *readerPublisher) Subscribe(sub Subscriber) {
	subscribed := false
	p.once.Do(func() {
		subscribed = true
		s := &readerSubscription{p: p, sub: sub, wake: make(chan struct{}, 1)}
		sub.OnSubscribe(s)
	})
	if !subscribed {
		sub.OnSubscribe(NoopSubscription{})
		sub.OnError(errors.New("reader publisher supports a single subscriber"))
	}
}

type readerSubscription struct {
	p   *readerPublisher
	sub Subscriber

	mu        sync.Mutex
	demand    int64
	err       error
	started   bool
	cancelled bool
	wake      chan struct{}
}

func (s *readerSubscription) Request(n int64) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	if n <= 0 && s.err == nil {
		s.err = &NonPositiveRequestError{n}
	}
	s.demand = AddDemand(s.demand, n)
	start := !s.started
	s.started = true
	s.mu.Unlock()

	if start {
		go s.run()
	}
	s.signal()
}

func (s *readerSubscription) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	s.signal()
}

func (s *readerSubscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// take waits for demand and consumes one unit of it.
func (s *readerSubscription) take() (ok bool, err error) {
	for {
		s.mu.Lock()
		switch {
		case s.cancelled:
			s.mu.Unlock()
			return false, nil
		case s.err != nil:
			err = s.err
			s.cancelled = true
			s.mu.Unlock()
			return false, err
		case s.demand > 0:
			if s.demand != Unbounded {
				s.demand--
			}
			s.mu.Unlock()
			return true, nil
		}
		s.mu.Unlock()
		<-s.wake
	}
}

func (s *readerSubscription) run() {
	for {
		ok, err := s.take()
		if err != nil {
			s.sub.OnError(err)
			return
		}
		if !ok {
			return
		}

		buf := make([]byte, s.p.chunkSize)
		n, err := s.read(buf)
		if n > 0 {
			s.sub.OnNext(buf[:n])
		}
		switch {
		case errors.Is(err, io.EOF):
			s.finish(nil)
			return
		case err != nil:
			s.finish(fmt.Errorf("read body: %w", err))
			return
		}
	}
}

// read emits whatever one Read returns, so a slow source is streamed as it
// trickles in instead of waiting for a full chunk.
func (s *readerSubscription) read(buf []byte) (int, error) {
	for range maxEmptyReads {
		n, err := s.p.r.Read(buf)
		if n > 0 || err != nil {
			return n, err
		}
	}
	return 0, io.ErrNoProgress
}

func (s *readerSubscription) finish(err error) {
	s.mu.Lock()
	cancelled := s.cancelled
	s.cancelled = true
	s.mu.Unlock()
	if cancelled {
		return
	}
	if err != nil {
		s.sub.OnError(err)
		return
	}
	s.sub.OnComplete()
}
