package noop

import (
	"golang.org/x/net/http2"

	"github.com/ozontech/h2duplex/report"
)

type Noop struct {
	close chan struct{}
}

var _ report.Reporter = (*Noop)(nil)

func New() *Noop {
	return &Noop{make(chan struct{})}
}

func (m *Noop) Run() error {
	<-m.close
	return nil
}

func (m *Noop) Close() error {
	close(m.close)
	return nil
}

func (m *Noop) Acquire(string) report.State {
	return noopState{}
}

type noopState struct{}

func (noopState) Sent(int)                {}
func (noopState) Received(int)            {}
func (noopState) OnHeader(string, string) {}
func (noopState) RSTStream(http2.ErrCode) {}
func (noopState) IoError(error)           {}
func (noopState) GoAway(http2.ErrCode)    {}
func (noopState) End()                    {}
