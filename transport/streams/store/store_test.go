package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/net/http2/hpack"

	"github.com/ozontech/h2duplex/transport/streams/store"
	"github.com/ozontech/h2duplex/transport/types"
)

type stubStream struct{ id uint32 }

func (s stubStream) ID() uint32                          { return s.id }
func (s stubStream) FC() types.FlowControl               { return nil }
func (s stubStream) OnHeaders([]hpack.HeaderField, bool) {}
func (s stubStream) OnDataStart(int) bool                { return true }
func (s stubStream) OnData([]byte)                       {}
func (s stubStream) OnDataEnd(int, bool)                 {}
func (s stubStream) End(error)                           {}

func TestStreamsMap(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	m := store.NewStreamsMap(4)
	for _, id := range []uint32{1, 3, 5} {
		m.Set(id, stubStream{id})
	}
	a.Equal(3, m.Len())
	a.Equal(uint32(3), m.Get(3).ID())
	a.Nil(m.Get(7))

	var above []uint32
	for _, s := range m.Above(1) {
		above = append(above, s.ID())
	}
	a.ElementsMatch([]uint32{3, 5}, above)
	a.Empty(m.Above(5))

	// deleting from inside Each must not deadlock
	var seen []uint32
	m.Each(func(s types.Stream) {
		seen = append(seen, s.ID())
		m.Delete(s.ID())
	})
	a.ElementsMatch([]uint32{1, 3, 5}, seen)
	a.Zero(m.Len())
}
