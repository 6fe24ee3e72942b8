package client

import (
	"go.uber.org/zap"

	"github.com/ozontech/h2duplex/report"
	"github.com/ozontech/h2duplex/transport"
)

type Option interface {
	apply(c *Client)
}

type loggerOpt struct{ log *zap.Logger }

func (o loggerOpt) apply(c *Client) { c.log = o.log }

func WithLogger(log *zap.Logger) Option { return loggerOpt{log} }

type reporterOpt struct{ r report.Acquirer }

func (o reporterOpt) apply(c *Client) { c.reporter = o.r }

// WithReporter acquires a report state for every submitted exchange.
func WithReporter(r report.Acquirer) Option { return reporterOpt{r} }

type dialerOpt struct{ d transport.Dialer }

func (o dialerOpt) apply(c *Client) { c.dialer = o.d }

// WithDialer replaces the TCP dialer, e.g. with a TLS one. The dialed
// connection must already speak HTTP/2.
func WithDialer(d transport.Dialer) Option { return dialerOpt{d} }
