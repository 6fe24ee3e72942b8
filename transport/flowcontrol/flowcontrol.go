package flowcontrol

import (
	"sync"
)

// FlowControl is a send window. It can go negative when the peer shrinks
// SETTINGS_INITIAL_WINDOW_SIZE below what is already in flight.
type FlowControl struct {
	mu   sync.Mutex
	n    int64
	ok   bool
	wake chan struct{}
}

func NewFlowControl(n int64) *FlowControl {
	return &FlowControl{
		n:    n,
		ok:   true,
		wake: make(chan struct{}),
	}
}

// Take waits until the window is positive and takes up to max bytes of it.
// It gives up when stop is closed or the flow control is disabled.
func (fc *FlowControl) Take(stop <-chan struct{}, max int) (int, bool) {
	if max <= 0 {
		panic("assertion error")
	}
	for {
		fc.mu.Lock()
		if !fc.ok {
			fc.mu.Unlock()
			return 0, false
		}
		if fc.n > 0 {
			n := int(min(fc.n, int64(max)))
			fc.n -= int64(n)
			fc.mu.Unlock()
			return n, true
		}
		wake := fc.wake
		fc.mu.Unlock()

		select {
		case <-wake:
		case <-stop:
			return 0, false
		}
	}
}

func (fc *FlowControl) Add(n int64) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.n += n
	fc.broadcastLocked() // будим всех, кто ждет окна
}

func (fc *FlowControl) Available() int64 {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.n
}

func (fc *FlowControl) Disable() {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.ok = false
	fc.broadcastLocked()
}

func (fc *FlowControl) broadcastLocked() {
	close(fc.wake)
	fc.wake = make(chan struct{})
}
