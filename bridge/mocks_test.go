package bridge_test

import (
	"sync"

	"github.com/ozontech/h2duplex/reactive"
)

type SubscriptionMock struct {
	RequestFunc func(n int64)
	CancelFunc  func()

	mu    sync.Mutex
	calls struct {
		Request []struct{ N int64 }
		Cancel  []struct{}
	}
}

func (m *SubscriptionMock) Request(n int64) {
	m.mu.Lock()
	m.calls.Request = append(m.calls.Request, struct{ N int64 }{n})
	m.mu.Unlock()
	if m.RequestFunc != nil {
		m.RequestFunc(n)
	}
}

func (m *SubscriptionMock) Cancel() {
	m.mu.Lock()
	m.calls.Cancel = append(m.calls.Cancel, struct{}{})
	m.mu.Unlock()
	if m.CancelFunc != nil {
		m.CancelFunc()
	}
}

func (m *SubscriptionMock) RequestCalls() []struct{ N int64 } {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]struct{ N int64 }(nil), m.calls.Request...)
}

func (m *SubscriptionMock) CancelCalls() []struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]struct{}(nil), m.calls.Cancel...)
}

type WindowIncrementerMock struct {
	IncrementWindowFunc func(n int)

	mu    sync.Mutex
	calls []struct{ N int }
}

func (m *WindowIncrementerMock) IncrementWindow(n int) {
	m.mu.Lock()
	m.calls = append(m.calls, struct{ N int }{n})
	m.mu.Unlock()
	if m.IncrementWindowFunc != nil {
		m.IncrementWindowFunc(n)
	}
}

func (m *WindowIncrementerMock) IncrementWindowCalls() []struct{ N int } {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]struct{ N int }(nil), m.calls...)
}

func (m *WindowIncrementerMock) Total() int {
	total := 0
	for _, c := range m.IncrementWindowCalls() {
		total += c.N
	}
	return total
}

// subscriber records what an Inbound bridge signals to it.
type subscriber struct {
	mu        sync.Mutex
	sub       reactive.Subscription
	chunks    [][]byte
	errs      []error
	completes int
	onNext    func(s *subscriber, b []byte)
	onSub     func(s reactive.Subscription)
	done      chan struct{}
}

func newSubscriber() *subscriber { return &subscriber{done: make(chan struct{})} }

func (s *subscriber) OnSubscribe(sub reactive.Subscription) {
	s.mu.Lock()
	s.sub = sub
	onSub := s.onSub
	s.mu.Unlock()
	if onSub != nil {
		onSub(sub)
	}
}

func (s *subscriber) OnNext(b []byte) {
	s.mu.Lock()
	s.chunks = append(s.chunks, b)
	onNext := s.onNext
	s.mu.Unlock()
	if onNext != nil {
		onNext(s, b)
	}
}

func (s *subscriber) OnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
	if len(s.errs)+s.completes == 1 {
		close(s.done)
	}
}

func (s *subscriber) OnComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completes++
	if len(s.errs)+s.completes == 1 {
		close(s.done)
	}
}

func (s *subscriber) Request(n int64) { s.subscription().Request(n) }
func (s *subscriber) Cancel()         { s.subscription().Cancel() }

func (s *subscriber) subscription() reactive.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

func (s *subscriber) Chunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.chunks...)
}

func (s *subscriber) Bytes() []byte {
	var out []byte
	for _, c := range s.Chunks() {
		out = append(out, c...)
	}
	return out
}

func (s *subscriber) Terminal() (errs []error, completes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...), s.completes
}

func recoverPanic(f func()) (v any) {
	defer func() { v = recover() }()
	f()
	return nil
}
