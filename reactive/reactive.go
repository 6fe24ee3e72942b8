// Package reactive defines the demand-driven byte-chunk stream contract used
// for request and response bodies.
//
// A Publisher emits chunks to one Subscriber only after the subscriber asked
// for them through its Subscription. Emission, completion and error are
// signalled serially: a publisher never calls one subscriber from two
// goroutines at once, and after OnComplete or OnError it calls nothing more.
package reactive

import "math"

// Unbounded is the demand value meaning "send everything".
const Unbounded int64 = math.MaxInt64

type Publisher interface {
	Subscribe(Subscriber)
}

type Subscriber interface {
	OnSubscribe(Subscription)
	// OnNext hands over a chunk. The subscriber owns it after the call.
	OnNext([]byte)
	OnError(error)
	OnComplete()
}

type Subscription interface {
	// Request adds n to the outstanding demand. Non-positive n is a
	// protocol violation and is answered with OnError.
	Request(n int64)
	Cancel()
}

// AddDemand adds n to cur saturating at Unbounded.
func AddDemand(cur, n int64) int64 {
	if n <= 0 {
		return cur
	}
	if cur > Unbounded-n {
		return Unbounded
	}
	return cur + n
}

type NoopSubscription struct{}

func (NoopSubscription) Request(int64) {}
func (NoopSubscription) Cancel()       {}
