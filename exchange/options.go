package exchange

import (
	"go.uber.org/zap"

	"github.com/ozontech/h2duplex/report"
)

type Option interface {
	apply(a *Adapter)
}

type loggerOpt struct{ log *zap.Logger }

func (o loggerOpt) apply(a *Adapter) { a.log = o.log }

func WithLogger(log *zap.Logger) Option { return loggerOpt{log} }

type stateOpt struct{ state report.State }

func (o stateOpt) apply(a *Adapter) { a.state = o.state }

// WithState reports the exchange outcome to state. End is called once the
// future is settled.
func WithState(state report.State) Option { return stateOpt{state} }
