// Package client submits HTTP/2 exchanges with streamed request and response
// bodies over cached prior-knowledge connections.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/ozontech/h2duplex/conncache"
	"github.com/ozontech/h2duplex/exchange"
	"github.com/ozontech/h2duplex/reactive"
	"github.com/ozontech/h2duplex/report"
	"github.com/ozontech/h2duplex/transport"
)

const collectBatch = 16

type Client struct {
	conf     Config
	tconf    transport.Config
	log      *zap.Logger
	reporter report.Acquirer
	dialer   transport.Dialer
	cache    *conncache.Cache[streamConn]
}

// streamConn is the part of *transport.Conn the client uses.
type streamConn interface {
	conncache.Conn
	Send(ctx context.Context, req *transport.Request, h transport.StreamHandler) (*transport.Stream, error)
}

func New(conf Config, opts ...Option) (*Client, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c := &Client{
		conf:   conf,
		log:    zap.NewNop(),
		dialer: &net.Dialer{},
	}
	for _, o := range opts {
		o.apply(c)
	}
	c.tconf = conf.transport()
	c.tconf.Dialer = c.dialer
	c.cache = conncache.New(c.dial, c.log)
	return c, nil
}

func (c *Client) dial(ctx context.Context, addr string) (streamConn, error) {
	conn, err := transport.Dial(ctx, addr, c.tconf, c.log)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Submit starts an exchange and returns at once. body may be nil. The
// response head and body go to h; the outcome also settles the returned
// future. Cancelling ctx resets the stream.
func (c *Client) Submit(ctx context.Context, req *Request, body reactive.Publisher, h exchange.ResponseHandler) *exchange.Future {
	opts := []exchange.Option{exchange.WithLogger(c.log)}
	if c.reporter != nil {
		opts = append(opts, exchange.WithState(c.reporter.Acquire(req.Tag)))
	}
	a := exchange.NewAdapter(h, body, c.conf.Window.Int(), opts...)

	addr, err := req.dialAddr()
	if err != nil {
		a.Fail(err)
		return a.Future()
	}
	go c.send(ctx, addr, req.transport(c.conf.UserAgent, body != nil), a)
	return a.Future()
}

// send opens the stream. A cached connection may turn out closed before the
// stream is created; then it is evicted and one fresh connection is tried.
func (c *Client) send(ctx context.Context, addr string, req *transport.Request, a *exchange.Adapter) {
	for attempt := 0; ; attempt++ {
		conn, err := c.cache.Get(ctx, addr)
		if err != nil {
			a.Fail(fmt.Errorf("connecting to %s: %w", addr, err))
			return
		}

		_, err = conn.Send(ctx, req, a)
		switch {
		case err == nil:
			return
		case errors.Is(err, transport.ErrConnClosed) && attempt == 0:
			c.cache.Evict(addr, conn)
			a.Logger().Debug("connection closed before stream opened, retrying", zap.String("addr", addr))
		default:
			a.Fail(err)
			return
		}
	}
}

// Do sends body and collects the whole response body.
func (c *Client) Do(ctx context.Context, req *Request, body []byte) (*exchange.Response, []byte, error) {
	var pub reactive.Publisher
	if body != nil {
		pub = reactive.FromBytes(body)
		if req.ContentLength <= 0 {
			r := *req
			r.ContentLength = int64(len(body))
			req = &r
		}
	}

	col := &collector{}
	col.sub = reactive.NewWriterSubscriber(&col.buf, collectBatch)
	f := c.Submit(ctx, req, pub, col)
	resp, err := f.Await(ctx)
	if err != nil {
		return nil, nil, err
	}
	if _, err := col.sub.Wait(ctx); err != nil {
		return resp, nil, err
	}
	return resp, col.buf.Bytes(), nil
}

// Close closes all connections. Exchanges still open fail.
func (c *Client) Close() error {
	return c.cache.Close()
}

type collector struct {
	buf bytes.Buffer
	sub *reactive.WriterSubscriber
}

func (c *collector) OnHeaders(*exchange.Response)     {}
func (c *collector) OnStream(body reactive.Publisher) { body.Subscribe(c.sub) }
func (c *collector) OnError(error)                    {}
