package limiter

import (
	"context"
	"errors"
	"math"
	"sync"
)

var ErrClosed = errors.New("limiter closed")

// Limiter bounds the number of concurrently open streams by the peer's
// SETTINGS_MAX_CONCURRENT_STREAMS. The quota may change at any time; streams
// already open above a lowered quota are left alone.
type Limiter struct {
	mu     sync.Mutex
	quota  uint32
	inUse  uint32
	closed bool
	wake   chan struct{}
}

func New(quota uint32) *Limiter {
	return &Limiter{quota: quota, wake: make(chan struct{})}
}

// NewUnlimited is used until the peer announces a limit.
func NewUnlimited() *Limiter { return New(math.MaxUint32) }

func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return ErrClosed
		}
		if l.inUse < l.quota {
			l.inUse++
			l.mu.Unlock()
			return nil
		}
		wake := l.wake
		l.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inUse == 0 {
		panic("assertion error")
	}
	l.inUse--
	l.broadcastLocked()
}

func (l *Limiter) SetQuota(quota uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.quota = quota
	l.broadcastLocked()
}

func (l *Limiter) InUse() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inUse
}

// Close fails current and future waiters with ErrClosed.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	l.broadcastLocked()
}

func (l *Limiter) broadcastLocked() {
	close(l.wake)
	l.wake = make(chan struct{})
}
