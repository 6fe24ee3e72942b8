package reactive

import "sync"

// FromBytes returns a publisher that emits the given chunks in order and
// completes. Emission happens on the goroutine calling Request; a Request made
// from inside OnNext only adds demand, the running emission loop serves it.
func FromBytes(chunks ...[]byte) Publisher {
	return bytesPublisher(chunks)
}

// Empty completes right after subscription.
func Empty() Publisher { return bytesPublisher(nil) }

// Fail signals err right after subscription.
func Fail(err error) Publisher { return failPublisher{err} }

type bytesPublisher [][]byte

func (p bytesPublisher) Subscribe(sub Subscriber) {
	s := &bytesSubscription{sub: sub, chunks: p}
	sub.OnSubscribe(s)
	s.mu.Lock()
	s.serveLocked()
}

type bytesSubscription struct {
	mu       sync.Mutex
	sub      Subscriber
	chunks   [][]byte
	demand   int64
	emitting bool
	done     bool
	err      error
}

func (s *bytesSubscription) Request(n int64) {
	s.mu.Lock()
	if n <= 0 && s.err == nil {
		s.err = &NonPositiveRequestError{n}
	}
	s.demand = AddDemand(s.demand, n)
	s.serveLocked()
}

// serveLocked runs the emission loop unless another call already does.
// It is entered with s.mu held and returns with it released.
func (s *bytesSubscription) serveLocked() {
	if s.emitting || s.done {
		s.mu.Unlock()
		return
	}
	s.emitting = true
	defer func() {
		s.emitting = false
		s.mu.Unlock()
	}()

	for !s.done {
		sub := s.sub
		switch {
		case s.err != nil:
			s.done = true
			s.mu.Unlock()
			sub.OnError(s.err)
			s.mu.Lock()
		case len(s.chunks) == 0:
			s.done = true
			s.mu.Unlock()
			sub.OnComplete()
			s.mu.Lock()
		case s.demand > 0:
			chunk := s.chunks[0]
			s.chunks = s.chunks[1:]
			if s.demand != Unbounded {
				s.demand--
			}
			s.mu.Unlock()
			sub.OnNext(chunk)
			s.mu.Lock()
		default:
			return
		}
	}
}

func (s *bytesSubscription) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.chunks = nil
}

type failPublisher struct{ err error }

func (p failPublisher) Subscribe(sub Subscriber) {
	sub.OnSubscribe(NoopSubscription{})
	sub.OnError(p.err)
}
