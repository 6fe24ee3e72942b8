package bridge_test

import (
	"bytes"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozontech/h2duplex/bridge"
	"github.com/ozontech/h2duplex/reactive"
)

const mib = 1 << 20

func TestInboundOverrunAtCeiling(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	tr := &WindowIncrementerMock{}
	in := bridge.NewInbound(4*mib, tr)
	for i := 0; i < 4; i++ {
		in.QueueBuffer(make([]byte, mib))
	}
	a.Equal(4*mib, in.Queued())

	v := recoverPanic(func() { in.QueueBuffer(make([]byte, mib)) })
	var overrun *bridge.OverrunError
	require.IsType(t, overrun, v)
	overrun = v.(*bridge.OverrunError)
	a.Equal(bridge.DirInbound, overrun.Direction)
	a.Equal(4*mib, overrun.Queued)
	a.Equal(mib, overrun.Requested)

	// the bridge stays usable after the fatal overrun
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Equal(4*mib, in.Queued())
		sub := newSubscriber()
		in.Subscribe(sub)
		sub.Cancel()
		a.Equal(bridge.Cancelled, in.State())
		a.Zero(in.Queued())
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("bridge is locked after overrun")
	}
	a.Equal(4*mib, tr.Total(), "dropped bytes are credited back")
}

func TestInboundDemand(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	tr := &WindowIncrementerMock{}
	in := bridge.NewInbound(1024, tr)
	for _, c := range []string{"one", "two", "three"} {
		in.QueueBuffer([]byte(c))
	}
	sub := newSubscriber()
	in.Subscribe(sub)
	a.Empty(sub.Chunks(), "no demand, no delivery")

	sub.Request(2)
	a.Equal([][]byte{[]byte("one"), []byte("two")}, sub.Chunks())
	a.Equal(5, in.Queued())
	a.Equal([]struct{ N int }{{6}}, tr.IncrementWindowCalls())

	sub.Request(1)
	a.Equal([][]byte{[]byte("one"), []byte("two"), []byte("three")}, sub.Chunks())
	a.Zero(in.Queued())
	a.Equal(11, tr.Total())

	in.QueueBuffer([]byte("four"))
	in.Deliver()
	a.Len(sub.Chunks(), 3, "demand was used up")
}

func TestInboundRequestInsideOnNext(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	const chunks = 10_000
	tr := &WindowIncrementerMock{}
	in := bridge.NewInbound(chunks, tr)
	for i := 0; i < chunks; i++ {
		in.QueueBuffer([]byte{byte(i)})
	}
	in.Complete()

	depth, maxDepth := 0, 0
	sub := newSubscriber()
	sub.onNext = func(s *subscriber, _ []byte) {
		depth++
		maxDepth = max(maxDepth, depth)
		s.Request(1)
		depth--
	}
	in.Subscribe(sub)
	sub.Request(1)

	a.Len(sub.Chunks(), chunks)
	a.Equal(1, maxDepth, "re-entrant request must not recurse")
	errs, completes := sub.Terminal()
	a.Empty(errs)
	a.Equal(1, completes)
	a.Equal([]struct{ N int }{{chunks}}, tr.IncrementWindowCalls(), "one credit per delivery call")
	a.Equal(bridge.SignaledComplete, in.State())
}

func TestInboundCompleteOnce(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	in := bridge.NewInbound(1024, &WindowIncrementerMock{})
	in.QueueBuffer([]byte("tail"))
	in.Complete()
	in.Complete()

	sub := newSubscriber()
	in.Subscribe(sub)
	in.Deliver()
	_, completes := sub.Terminal()
	a.Zero(completes, "completion waits for queued chunks")

	sub.Request(reactive.Unbounded)
	sub.Request(reactive.Unbounded)
	in.Deliver()
	in.SetError(errors.New("too late"))
	in.Deliver()

	errs, completes := sub.Terminal()
	a.Empty(errs)
	a.Equal(1, completes)
	a.Equal([][]byte{[]byte("tail")}, sub.Chunks())

	a.Equal(bridge.ErrQueueAfterEnd, recoverPanic(func() { in.QueueBuffer([]byte("x")) }))
}

func TestInboundErrorAfterQueuedData(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	boom := errors.New("connection reset")
	in := bridge.NewInbound(1024, &WindowIncrementerMock{})
	in.QueueBuffer([]byte("partial"))
	in.SetError(boom)
	in.SetError(errors.New("ignored"))

	sub := newSubscriber()
	in.Subscribe(sub)
	errs, _ := sub.Terminal()
	a.Empty(errs, "error waits for queued chunks")

	sub.Request(1)
	errs, completes := sub.Terminal()
	a.Equal([]error{boom}, errs)
	a.Zero(completes)
	a.Equal([][]byte{[]byte("partial")}, sub.Chunks())
	a.Equal(bridge.SignaledError, in.State())

	a.NotPanics(func() { in.QueueBuffer([]byte("after error")) })
}

func TestInboundSignalsWithoutDemand(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	in := bridge.NewInbound(1024, nil)
	in.Complete()
	sub := newSubscriber()
	in.Subscribe(sub)
	_, completes := sub.Terminal()
	a.Equal(1, completes, "empty completed body completes on subscribe")

	in = bridge.NewInbound(1024, nil)
	in.SetError(errors.New("refused"))
	sub = newSubscriber()
	in.Subscribe(sub)
	errs, _ := sub.Terminal()
	a.Len(errs, 1)
}

func TestInboundSecondSubscriber(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	in := bridge.NewInbound(1024, nil)
	first, second := newSubscriber(), newSubscriber()
	in.Subscribe(first)
	in.Subscribe(second)

	errs, _ := second.Terminal()
	a.Equal([]error{bridge.ErrAlreadySubscribed}, errs)
	a.NotNil(second.subscription())

	in.QueueBuffer([]byte("data"))
	first.Request(1)
	a.Equal([][]byte{[]byte("data")}, first.Chunks())
	a.Empty(second.Chunks())
}

func TestInboundCancel(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	tr := &WindowIncrementerMock{}
	in := bridge.NewInbound(1024, tr)
	in.QueueBuffer([]byte("abc"))
	in.QueueBuffer([]byte("defg"))

	sub := newSubscriber()
	in.Subscribe(sub)
	sub.Request(1)
	sub.Cancel()
	a.Equal(bridge.Cancelled, in.State())
	a.Equal(7, tr.Total(), "delivered and dropped bytes are credited")
	a.Zero(in.Queued())

	in.QueueBuffer([]byte("late"))
	a.Equal(11, tr.Total(), "late chunks are credited at once")
	a.Zero(in.Queued())

	in.Complete()
	in.SetError(errors.New("late"))
	sub.Request(10)
	in.Deliver()
	errs, completes := sub.Terminal()
	a.Empty(errs)
	a.Zero(completes)
	a.Len(sub.Chunks(), 1)
}

func TestInboundCancelInsideOnNext(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	tr := &WindowIncrementerMock{}
	in := bridge.NewInbound(1024, tr)
	in.QueueBuffer([]byte("a"))
	in.QueueBuffer([]byte("b"))
	in.Complete()

	sub := newSubscriber()
	sub.onNext = func(s *subscriber, _ []byte) { s.Cancel() }
	in.Subscribe(sub)
	sub.Request(reactive.Unbounded)

	a.Len(sub.Chunks(), 1)
	_, completes := sub.Terminal()
	a.Zero(completes)
	a.Equal(2, tr.Total())
}

func TestInboundCancelInOnSubscribe(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	in := bridge.NewInbound(1024, nil)
	in.Complete()
	sub := newSubscriber()
	sub.onSub = func(s reactive.Subscription) { s.Cancel() }
	in.Subscribe(sub)

	errs, completes := sub.Terminal()
	a.Empty(errs)
	a.Zero(completes)
}

func TestInboundNonPositiveRequest(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	tr := &WindowIncrementerMock{}
	in := bridge.NewInbound(1024, tr)
	in.QueueBuffer([]byte("abc"))
	sub := newSubscriber()
	in.Subscribe(sub)
	sub.Request(0)

	errs, _ := sub.Terminal()
	require.Len(t, errs, 1)
	var npe *reactive.NonPositiveRequestError
	a.ErrorAs(errs[0], &npe)
	a.Equal(3, tr.Total())
	a.Empty(sub.Chunks())

	in.QueueBuffer([]byte("more"))
	a.Equal(7, tr.Total())
}

func TestInboundDemandSaturates(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	in := bridge.NewInbound(1024, nil)
	sub := newSubscriber()
	in.Subscribe(sub)
	sub.Request(reactive.Unbounded)
	sub.Request(reactive.Unbounded)
	sub.Request(1)
	for i := 0; i < 100; i++ {
		in.QueueBuffer([]byte{byte(i)})
		in.Deliver()
	}
	a.Len(sub.Chunks(), 100)
}

// The transport goroutine pushes only as much as the credited window allows,
// the consumer goroutine requests one chunk at a time. Bytes must arrive in
// order and the queue must never grow past the ceiling.
func TestInboundConcurrentOrder(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	const ceiling = 4096
	body := make([]byte, 512*1024)
	rng := rand.New(rand.NewSource(1))
	rng.Read(body)

	var (
		creditMu sync.Mutex
		credit   = ceiling
		credited = make(chan struct{}, 1)
	)
	tr := &WindowIncrementerMock{IncrementWindowFunc: func(n int) {
		creditMu.Lock()
		credit += n
		creditMu.Unlock()
		select {
		case credited <- struct{}{}:
		default:
		}
	}}
	in := bridge.NewInbound(ceiling, tr)
	sub := newSubscriber()
	in.Subscribe(sub)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		rest := body
		for len(rest) > 0 {
			creditMu.Lock()
			n := min(credit, len(rest), 1+rng.Intn(700))
			credit -= n
			creditMu.Unlock()
			if n == 0 {
				<-credited
				continue
			}
			in.QueueBuffer(bytes.Clone(rest[:n]))
			in.Deliver()
			rest = rest[n:]
		}
		in.Complete()
		in.Deliver()
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-sub.done:
				return
			default:
			}
			sub.Request(1)
			time.Sleep(time.Microsecond)
		}
	}()
	wg.Wait()

	a.Equal(body, sub.Bytes())
	_, completes := sub.Terminal()
	a.Equal(1, completes)
}
