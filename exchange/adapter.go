package exchange

import (
	"bytes"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/net/http2/hpack"

	"github.com/ozontech/h2duplex/bridge"
	"github.com/ozontech/h2duplex/reactive"
	"github.com/ozontech/h2duplex/report"
	"github.com/ozontech/h2duplex/transport"
)

type Phase uint8

const (
	HeadersPending Phase = iota
	HeadersReceived
	BodyStreaming
	Complete
	Failed
)

var phaseNames = [...]string{
	HeadersPending:  "headers-pending",
	HeadersReceived: "headers-received",
	BodyStreaming:   "body-streaming",
	Complete:        "complete",
	Failed:          "failed",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "phase(" + strconv.Itoa(int(p)) + ")"
}

func (p Phase) terminal() bool { return p == Complete || p == Failed }

var lastID atomic.Uint64

// Adapter joins one transport stream with the caller: the request body
// producer feeds an Outbound bridge the stream pump pulls from, and response
// body fragments are queued on an Inbound bridge handed to the
// ResponseHandler.
type Adapter struct {
	id      uint64
	handler ResponseHandler
	window  int
	future  *Future
	log     *zap.Logger

	outbound *bridge.Outbound
	ready    chan struct{}

	mu      sync.Mutex
	phase   Phase
	resp    *Response
	inbound *bridge.Inbound

	stateMu sync.Mutex
	state   report.State

	handlerMu sync.Mutex // ResponseHandler callbacks never overlap
}

var _ transport.StreamHandler = (*Adapter)(nil)

// NewAdapter subscribes to body right away; nil means no request body.
// window is the ceiling of both bridges.
func NewAdapter(handler ResponseHandler, body reactive.Publisher, window int, opts ...Option) *Adapter {
	a := &Adapter{
		id:      lastID.Add(1),
		handler: handler,
		window:  window,
		future:  newFuture(),
		log:     zap.NewNop(),
		ready:   make(chan struct{}, 1),
	}
	for _, o := range opts {
		o.apply(a)
	}
	a.log = a.log.Named("exchange").With(zap.Uint64("exchange-id", a.id))

	a.outbound = bridge.NewOutbound(window, a.signal)
	if body == nil {
		body = reactive.Empty()
	}
	body.Subscribe(a.outbound)
	return a
}

func (a *Adapter) ID() uint64          { return a.id }
func (a *Adapter) Future() *Future     { return a.future }
func (a *Adapter) Logger() *zap.Logger { return a.log }

func (a *Adapter) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

func (a *Adapter) signal() {
	select {
	case a.ready <- struct{}{}:
	default:
	}
}

func (a *Adapter) OnResponseHeaders(_ transport.StreamHandle, block transport.HeaderBlock, fields []hpack.HeaderField) {
	if block == transport.BlockInformational {
		a.log.Debug("informational response skipped", zap.Int("status", statusOf(fields)))
		return
	}

	a.mu.Lock()
	switch block {
	case transport.BlockMain:
		if a.resp == nil {
			a.resp = &Response{Status: statusOf(fields)}
		}
		a.resp.Header = appendFields(a.resp.Header, fields)
	case transport.BlockTrailing:
		if a.resp != nil {
			a.resp.Trailer = appendFields(a.resp.Trailer, fields)
		}
	}
	a.mu.Unlock()

	a.report(func(s report.State) {
		for _, f := range fields {
			s.OnHeader(f.Name, f.Value)
		}
	}, false)
}

func (a *Adapter) OnResponseHeadersDone(s transport.StreamHandle, hasBody bool) {
	a.mu.Lock()
	if a.phase != HeadersPending {
		a.mu.Unlock()
		return
	}
	a.phase = HeadersReceived
	resp := a.resp
	in := bridge.NewInbound(a.window, s)
	a.inbound = in
	a.mu.Unlock()

	a.log.Debug("response headers", zap.Int("status", resp.Status), zap.Bool("body", hasBody))
	a.handlerMu.Lock()
	defer a.handlerMu.Unlock()
	a.handler.OnHeaders(resp)
	if !hasBody {
		in.Complete()
	}

	a.mu.Lock()
	failed := a.phase == Failed
	if a.phase == HeadersReceived {
		a.phase = BodyStreaming
	}
	a.mu.Unlock()
	if failed {
		// OnError follows as soon as the lock is released
		return
	}
	a.handler.OnStream(in)
}

func (a *Adapter) OnResponseBody(_ transport.StreamHandle, b []byte) {
	a.mu.Lock()
	in := a.inbound
	a.mu.Unlock()
	if in == nil {
		panic("assertion error: body before headers")
	}

	// буфер чтения переиспользуется после возврата из колбека
	in.QueueBuffer(bytes.Clone(b))
	in.Deliver()
	a.report(func(s report.State) { s.Received(len(b)) }, false)
}

func (a *Adapter) OnResponseComplete(_ transport.StreamHandle, err error) {
	if err == nil {
		a.complete()
		return
	}
	a.Fail(err)
}

func (a *Adapter) complete() {
	a.mu.Lock()
	if a.phase.terminal() {
		a.mu.Unlock()
		return
	}
	a.phase = Complete
	resp, in := a.resp, a.inbound
	a.mu.Unlock()

	if in != nil {
		in.Complete()
		in.Deliver()
	}
	a.outbound.Cancel()
	a.log.Debug("exchange completed")
	a.report(func(s report.State) { s.End() }, true)
	a.future.complete(resp)
}

// Fail ends the exchange with err. It is also used when no stream could be
// opened for the exchange.
func (a *Adapter) Fail(err error) {
	a.mu.Lock()
	if a.phase.terminal() {
		a.mu.Unlock()
		return
	}
	a.phase = Failed
	in := a.inbound
	a.mu.Unlock()

	exErr := &Error{ExchangeID: a.id, Err: err}
	if in != nil {
		in.SetError(exErr)
		in.Deliver()
	}
	a.outbound.Cancel()
	a.log.Debug("exchange failed", zap.Error(err))
	a.report(func(s report.State) {
		var (
			rstErr    transport.RSTStreamError
			goAwayErr transport.GoAwayError
			streamErr transport.StreamError
		)
		switch {
		case errors.As(err, &goAwayErr):
			s.GoAway(goAwayErr.Code)
		case errors.As(err, &rstErr):
			s.RSTStream(rstErr.Code)
		case errors.As(err, &streamErr):
			s.RSTStream(streamErr.Code)
		default:
			s.IoError(err)
		}
		s.End()
	}, true)
	a.handlerMu.Lock()
	a.handler.OnError(exErr)
	a.handlerMu.Unlock()
	a.future.fail(exErr)
}

func (a *Adapter) SendRequestBody(_ transport.StreamHandle, out []byte) (int, bool, error) {
	n, done, err := a.outbound.FillTransportBuffer(out)
	if n > 0 {
		a.report(func(s report.State) { s.Sent(n) }, false)
	}
	return n, done, err
}

func (a *Adapter) RequestBodyReady() <-chan struct{} { return a.ready }

// report serializes state hooks: the pump and the receive goroutine both
// report. The state is dropped after the last call.
func (a *Adapter) report(fn func(report.State), last bool) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	if a.state == nil {
		return
	}
	fn(a.state)
	if last {
		a.state = nil
	}
}
