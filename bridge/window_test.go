package bridge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ozontech/h2duplex/bridge"
)

func TestWindow(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	w := bridge.NewWindow(bridge.DirInbound, 10)
	a.Equal(10, w.Ceiling())
	a.Equal(10, w.Available())

	w.Reserve(4)
	w.Reserve(6)
	a.Equal(10, w.Queued())
	a.False(w.Below())
	a.Zero(w.Available())

	v := recoverPanic(func() { w.Reserve(1) })
	overrun, ok := v.(*bridge.OverrunError)
	a.True(ok, "overrun must panic with *OverrunError, got %v", v)
	a.Equal(&bridge.OverrunError{Direction: bridge.DirInbound, Queued: 10, Requested: 1, Ceiling: 10}, overrun)
	a.Equal(10, w.Queued(), "failed reserve must not change the count")

	w.Release(7)
	a.Equal(3, w.Queued())
	a.True(w.Below())

	v = recoverPanic(func() { w.Release(4) })
	a.IsType(&bridge.UnderrunError{}, v)
	a.Equal(3, w.Queued())
}

func TestWindowOutboundIsSoft(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	w := bridge.NewWindow(bridge.DirOutbound, 10)
	a.NotPanics(func() { w.Reserve(25) })
	a.Equal(25, w.Queued())
	a.Zero(w.Available())
	a.False(w.Below())
}

func TestWindowCeiling(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { bridge.NewWindow(bridge.DirInbound, 0) })
}

func TestStateTerminal(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	a.False(bridge.Open.Terminal())
	a.False(bridge.QueuedComplete.Terminal())
	a.True(bridge.SignaledComplete.Terminal())
	a.True(bridge.SignaledError.Terminal())
	a.True(bridge.Cancelled.Terminal())
	a.Equal("queued-complete", bridge.QueuedComplete.String())
	a.Equal("state(42)", bridge.State(42).String())
}
