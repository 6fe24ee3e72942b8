package bridge

import (
	"sync"

	"github.com/ozontech/h2duplex/reactive"
)

// WindowIncrementer is the transport side of the inbound flow control: bytes
// handed to it may be sent again by the peer.
type WindowIncrementer interface {
	IncrementWindow(n int)
}

// Inbound queues response body chunks pushed by the transport and releases
// them to a single subscriber according to its demand.
//
// Delivery is funneled through Deliver. The goroutine that finds the bridge
// idle owns delivery and loops until no more progress is possible; callers
// arriving meanwhile, including the subscriber re-entering from OnNext, only
// update state and return. Subscriber callbacks run without the lock held.
type Inbound struct {
	mu        sync.Mutex
	window    *Window
	queue     chunkQueue
	state     State
	err       error
	demand    int64
	sub       reactive.Subscriber
	attached  bool
	depth     int
	transport WindowIncrementer
}

var _ reactive.Publisher = (*Inbound)(nil)

func NewInbound(ceiling int, transport WindowIncrementer) *Inbound {
	return &Inbound{
		window:    NewWindow(DirInbound, ceiling),
		transport: transport,
	}
}

// Subscribe attaches the single subscriber. A second subscriber is rejected
// with ErrAlreadySubscribed and does not affect the first.
func (in *Inbound) Subscribe(sub reactive.Subscriber) {
	in.mu.Lock()
	if in.attached {
		in.mu.Unlock()
		sub.OnSubscribe(reactive.NoopSubscription{})
		sub.OnError(ErrAlreadySubscribed)
		return
	}
	in.attached = true
	in.mu.Unlock()

	sub.OnSubscribe(&subscription{in})

	in.mu.Lock()
	if in.state != Cancelled {
		in.sub = sub
	}
	in.mu.Unlock()
	in.Deliver()
}

// QueueBuffer takes ownership of b. After cancellation or a latched error the
// bytes are credited back to the transport right away instead of queued.
func (in *Inbound) QueueBuffer(b []byte) {
	in.mu.Lock()
	switch {
	case in.state == Cancelled || in.err != nil:
		in.mu.Unlock()
		in.credit(len(b))
		return
	case in.state != Open:
		in.mu.Unlock()
		panic(ErrQueueAfterEnd)
	}
	if err := in.window.reserve(len(b)); err != nil {
		in.mu.Unlock()
		panic(err)
	}
	in.queue.Push(b)
	in.mu.Unlock()
}

// Complete marks the end of the stream. Queued chunks are still delivered.
func (in *Inbound) Complete() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state == Open {
		in.setStateLocked(QueuedComplete)
	}
}

// SetError latches err. The first error wins; it is signalled once the queue
// has been drained.
func (in *Inbound) SetError(err error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.err != nil || in.state.Terminal() {
		return
	}
	in.err = err
}

func (in *Inbound) State() State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// Queued returns the number of bytes queued and not yet delivered.
func (in *Inbound) Queued() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.window.Queued()
}

// Deliver hands queued chunks to the subscriber while it has demand and
// signals the terminal event once the queue is empty. Bytes delivered are
// credited back to the transport in one call.
func (in *Inbound) Deliver() {
	in.mu.Lock()
	if in.depth > 0 {
		in.mu.Unlock()
		return
	}
	in.depth++

	released := 0
	for {
		sub := in.sub
		if sub == nil || in.state.Terminal() {
			break
		}

		if in.err != nil && in.queue.Empty() {
			in.setStateLocked(SignaledError)
			in.sub = nil
			err := in.err
			in.mu.Unlock()
			sub.OnError(err)
			in.mu.Lock()
			break
		}

		if in.demand > 0 && !in.queue.Empty() {
			b := in.queue.Pop()
			if in.demand != reactive.Unbounded {
				in.demand--
			}
			in.mu.Unlock()
			sub.OnNext(b)
			in.mu.Lock()
			if err := in.window.release(len(b)); err != nil {
				in.depth--
				in.mu.Unlock()
				panic(err)
			}
			released += len(b)
			continue
		}

		if in.state == QueuedComplete && in.queue.Empty() {
			in.setStateLocked(SignaledComplete)
			in.sub = nil
			in.mu.Unlock()
			sub.OnComplete()
			in.mu.Lock()
		}
		break
	}

	in.depth--
	in.mu.Unlock()
	in.credit(released)
}

func (in *Inbound) request(n int64) {
	in.mu.Lock()
	if in.state.Terminal() {
		in.mu.Unlock()
		return
	}
	if n <= 0 {
		dropped := 0
		if in.err == nil {
			in.err = &reactive.NonPositiveRequestError{N: n}
			dropped = in.queue.Drop()
			if err := in.window.release(dropped); err != nil {
				in.mu.Unlock()
				panic(err)
			}
		}
		in.mu.Unlock()
		in.credit(dropped)
		in.Deliver()
		return
	}
	in.demand = reactive.AddDemand(in.demand, n)
	in.mu.Unlock()
	in.Deliver()
}

func (in *Inbound) cancel() {
	in.mu.Lock()
	if in.state.Terminal() {
		in.mu.Unlock()
		return
	}
	in.setStateLocked(Cancelled)
	in.sub = nil
	dropped := in.queue.Drop()
	if err := in.window.release(dropped); err != nil {
		in.mu.Unlock()
		panic(err)
	}
	in.mu.Unlock()
	in.credit(dropped)
}

func (in *Inbound) credit(n int) {
	if n > 0 && in.transport != nil {
		in.transport.IncrementWindow(n)
	}
}

func (in *Inbound) setStateLocked(to State) {
	if !in.state.canTransition(to) {
		panic("assertion error: " + in.state.String() + " -> " + to.String())
	}
	in.state = to
}

type subscription struct {
	in *Inbound
}

func (s *subscription) Request(n int64) { s.in.request(n) }
func (s *subscription) Cancel()         { s.in.cancel() }
