// Package multi fans exchange reports out to several reporters.
package multi

import (
	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"

	"github.com/ozontech/h2duplex/report"
	"github.com/ozontech/h2duplex/utils/pool"
)

type Multi struct {
	nested []report.Reporter
	pool   *pool.SlicePool[*multiState]
}

var _ report.Reporter = (*Multi)(nil)

func New(nested ...report.Reporter) *Multi {
	return &Multi{
		nested,
		pool.NewSlicePoolSize[*multiState](128),
	}
}

func (m *Multi) Run() error {
	g := new(errgroup.Group)
	for _, r := range m.nested {
		g.Go(r.Run)
	}
	return g.Wait()
}

func (m *Multi) Close() error {
	g := new(errgroup.Group)
	for _, r := range m.nested {
		g.Go(r.Close)
	}
	return g.Wait()
}

func (m *Multi) Acquire(tag string) report.State {
	ms, ok := m.pool.Acquire()
	if !ok {
		ms = &multiState{m: m, states: make([]report.State, len(m.nested))}
	}

	for i, r := range m.nested {
		ms.states[i] = r.Acquire(tag)
	}
	return ms
}

type multiState struct {
	m      *Multi
	states []report.State
}

func (s *multiState) Sent(n int) {
	for _, s := range s.states {
		s.Sent(n)
	}
}

func (s *multiState) Received(n int) {
	for _, s := range s.states {
		s.Received(n)
	}
}

func (s *multiState) OnHeader(name, value string) {
	for _, s := range s.states {
		s.OnHeader(name, value)
	}
}

func (s *multiState) RSTStream(code http2.ErrCode) {
	for _, s := range s.states {
		s.RSTStream(code)
	}
}

func (s *multiState) IoError(err error) {
	for _, s := range s.states {
		s.IoError(err)
	}
}

func (s *multiState) GoAway(code http2.ErrCode) {
	for _, s := range s.states {
		s.GoAway(code)
	}
}

func (s *multiState) End() {
	for i, st := range s.states {
		st.End()
		s.states[i] = nil
	}
	s.m.pool.Release(s)
}
