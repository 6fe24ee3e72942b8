package exchange_test

import (
	"sync"

	"golang.org/x/net/http2"

	"github.com/ozontech/h2duplex/exchange"
	"github.com/ozontech/h2duplex/reactive"
	"github.com/ozontech/h2duplex/report"
)

type StreamHandleMock struct {
	IncrementWindowFunc func(n int)
	CancelFunc          func(err error)

	mu    sync.Mutex
	calls struct {
		IncrementWindow []struct{ N int }
		Cancel          []struct{ Err error }
	}
}

func (m *StreamHandleMock) ID() uint32 { return 1 }

func (m *StreamHandleMock) IncrementWindow(n int) {
	m.mu.Lock()
	m.calls.IncrementWindow = append(m.calls.IncrementWindow, struct{ N int }{n})
	m.mu.Unlock()
	if m.IncrementWindowFunc != nil {
		m.IncrementWindowFunc(n)
	}
}

func (m *StreamHandleMock) Cancel(err error) {
	m.mu.Lock()
	m.calls.Cancel = append(m.calls.Cancel, struct{ Err error }{err})
	m.mu.Unlock()
	if m.CancelFunc != nil {
		m.CancelFunc(err)
	}
}

func (m *StreamHandleMock) IncrementWindowCalls() []struct{ N int } {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]struct{ N int }(nil), m.calls.IncrementWindow...)
}

func (m *StreamHandleMock) Credited() int {
	total := 0
	for _, c := range m.IncrementWindowCalls() {
		total += c.N
	}
	return total
}

// handler records what the adapter hands to the caller. OnStream subscribes
// sub to the body when set.
type handler struct {
	mu      sync.Mutex
	resp    *exchange.Response
	streams int
	errs    []error
	sub     reactive.Subscriber
}

func (h *handler) OnHeaders(resp *exchange.Response) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resp = resp
}

func (h *handler) OnStream(body reactive.Publisher) {
	h.mu.Lock()
	h.streams++
	sub := h.sub
	h.mu.Unlock()
	if sub != nil {
		body.Subscribe(sub)
	}
}

func (h *handler) OnError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *handler) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

// holdSubscriber requests nothing on its own.
type holdSubscriber struct {
	mu        sync.Mutex
	sub       reactive.Subscription
	chunks    []string
	err       error
	completed bool
}

func (s *holdSubscriber) OnSubscribe(sub reactive.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sub = sub
}

func (s *holdSubscriber) OnNext(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, string(b))
}

func (s *holdSubscriber) OnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *holdSubscriber) OnComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
}

func (s *holdSubscriber) Request(n int64) {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	sub.Request(n)
}

// manualPublisher lets the test drive the request body producer.
type manualPublisher struct {
	sub reactive.Subscriber
	req int64
}

func (p *manualPublisher) Subscribe(sub reactive.Subscriber) {
	p.sub = sub
	sub.OnSubscribe(p)
}

func (p *manualPublisher) Request(n int64) { p.req += n }
func (p *manualPublisher) Cancel()         {}

type StateMock struct {
	mu       sync.Mutex
	headers  map[string]string
	sent     int
	received int
	ioErrs   []error
	rst      []http2.ErrCode
	goAway   []http2.ErrCode
	ends     int
}

var _ report.State = (*StateMock)(nil)

func (m *StateMock) OnHeader(name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.headers == nil {
		m.headers = make(map[string]string)
	}
	m.headers[name] = value
}

func (m *StateMock) Sent(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent += n
}

func (m *StateMock) Received(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received += n
}

func (m *StateMock) IoError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ioErrs = append(m.ioErrs, err)
}

func (m *StateMock) RSTStream(code http2.ErrCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rst = append(m.rst, code)
}

func (m *StateMock) GoAway(code http2.ErrCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goAway = append(m.goAway, code)
}

func (m *StateMock) End() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ends++
}
