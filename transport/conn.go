package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"

	"github.com/ozontech/h2duplex/consts"
	"github.com/ozontech/h2duplex/frameheader"
	"github.com/ozontech/h2duplex/transport/flowcontrol"
	"github.com/ozontech/h2duplex/transport/reciever"
	"github.com/ozontech/h2duplex/transport/sender"
	"github.com/ozontech/h2duplex/transport/streams/limiter"
	"github.com/ozontech/h2duplex/transport/streams/store"
	"github.com/ozontech/h2duplex/transport/types"
	hpackwrapper "github.com/ozontech/h2duplex/utils/hpack_wrapper"
	"github.com/ozontech/h2duplex/utils/pool"
)

const (
	maxStreamID      = 1<<31 - 1
	goAwayTimeout    = time.Second
	dataPoolPrealloc = 16
)

// Conn is a client HTTP/2 connection opened with prior knowledge.
type Conn struct {
	conf Config
	log  *zap.Logger
	nc   net.Conn

	sender   *sender.Sender
	reciever *reciever.Reciever
	streams  *store.StreamsMap
	limiter  *limiter.Limiter
	fcConn   *flowcontrol.FlowControl
	dataPool *pool.BytesPool

	// newStreamMu keeps stream ids in the order of their HEADERS frames and
	// guards the encoder and the peer settings.
	newStreamMu       sync.Mutex
	hpack             *hpackwrapper.Wrapper
	nextID            uint32
	peerInitialWindow int64
	closed            bool
	draining          bool

	ctx      context.Context
	cancel   context.CancelCauseFunc
	done     chan struct{}
	err      error
	closeErr error
}

// Dial connects to authority (host:port) and performs the HTTP/2 handshake.
func Dial(ctx context.Context, authority string, conf Config, log *zap.Logger) (*Conn, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	dialCtx, cancel := context.WithTimeout(ctx, conf.DialTimeout)
	defer cancel()
	nc, err := conf.Dialer.DialContext(dialCtx, "tcp", authority)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", authority, err)
	}
	c, err := NewConn(dialCtx, nc, conf, log.With(zap.String("authority", authority)))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewConn runs the client side of the handshake over nc and starts serving
// the connection. nc is closed if the handshake fails.
func NewConn(ctx context.Context, nc net.Conn, conf Config, log *zap.Logger) (*Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Conn{
		conf:              conf,
		log:               log.Named("conn"),
		nc:                nc,
		sender:            sender.NewSender(nc),
		streams:           store.NewStreamsMap(0),
		limiter:           limiter.NewUnlimited(),
		fcConn:            flowcontrol.NewFlowControl(consts.DefaultInitialWindowSize),
		dataPool:          pool.NewBytesPool(frameheader.Size+consts.DefaultMaxFrameSize, dataPoolPrealloc),
		hpack:             hpackwrapper.NewWrapper(),
		nextID:            1,
		peerInitialWindow: consts.DefaultInitialWindowSize,
		done:              make(chan struct{}),
	}
	handler := connHandler{c}
	c.reciever = reciever.NewReciever(nc, conf.ReadBufferSize, reciever.NewDefaultProcessor(
		reciever.Config{
			MaxFrameSize:      conf.MaxFrameSize,
			ConnWindowSize:    conf.ConnWindowSize,
			HeaderTableSize:   conf.HeaderTableSize,
			MaxHeaderListSize: conf.MaxHeaderListSize,
		},
		c.streams, c.fcConn, c.sender, handler,
	))

	if err := c.handshake(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("http2 handshake: %w", err)
	}
	c.log.Info("connection established", zap.Stringer("remote", nc.RemoteAddr()))

	c.ctx, c.cancel = context.WithCancelCause(context.Background())
	go c.run()
	return c, nil
}

func (c *Conn) handshake(ctx context.Context) (err error) {
	deadline := time.Now().Add(c.conf.DialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err = c.nc.SetDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		c.nc.SetDeadline(time.Unix(1, 0)) //nolint:errcheck
	})
	defer func() {
		if !stop() && err == nil {
			err = ctx.Err()
		}
		if resetErr := c.nc.SetDeadline(time.Time{}); err == nil {
			err = resetErr
		}
	}()

	settings := []http2.Setting{
		{ID: http2.SettingEnablePush, Val: 0},
		{ID: http2.SettingInitialWindowSize, Val: uint32(c.conf.WindowSize)},
		{ID: http2.SettingMaxFrameSize, Val: uint32(c.conf.MaxFrameSize)},
	}
	if c.conf.MaxHeaderListSize != consts.DefaultMaxHeaderListSize {
		settings = append(settings, http2.Setting{ID: http2.SettingMaxHeaderListSize, Val: c.conf.MaxHeaderListSize})
	}
	if c.conf.HeaderTableSize != consts.DefaultHeaderTableSize {
		settings = append(settings, http2.Setting{ID: http2.SettingHeaderTableSize, Val: c.conf.HeaderTableSize})
	}
	preface := append([]byte(http2.ClientPreface), frameheader.Settings(settings...)...)
	if incr := c.conf.ConnWindowSize - consts.DefaultInitialWindowSize; incr > 0 {
		preface = append(preface, frameheader.WindowUpdate(0, uint32(incr))...)
	}
	if _, err = c.nc.Write(preface); err != nil {
		return fmt.Errorf("writing preface: %w", err)
	}

	header := frameheader.NewFrameHeader()
	if _, err = io.ReadFull(c.nc, header); err != nil {
		return fmt.Errorf("reading server settings: %w", err)
	}
	if header.Type() != http2.FrameSettings || header.Flags().Has(http2.FlagSettingsAck) || header.StreamID() != 0 {
		return ConnError{http2.ErrCodeProtocol, fmt.Errorf("expected server SETTINGS, got %s", header)}
	}
	if header.Length() > c.conf.MaxFrameSize {
		return ConnError{http2.ErrCodeFrameSize, fmt.Errorf("frame too large: %s", header)}
	}
	payload := make([]byte, header.Length())
	if _, err = io.ReadFull(c.nc, payload); err != nil {
		return fmt.Errorf("reading server settings: %w", err)
	}
	peerSettings, err := reciever.ParseSettings(payload)
	if err != nil {
		return err
	}
	if err = c.applySettings(peerSettings); err != nil {
		return err
	}
	if _, err = c.nc.Write(frameheader.SettingsAck()); err != nil {
		return fmt.Errorf("writing settings ack: %w", err)
	}
	return nil
}

func (c *Conn) run() {
	g, ctx := errgroup.WithContext(c.ctx)
	g.Go(func() error {
		if err := c.sender.Run(ctx); err != nil {
			return fmt.Errorf("writing error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return c.reciever.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		c.closeConn(context.Cause(ctx))
		return nil
	})
	c.shutdown(g.Wait())
}

// closeConn tells the peer why the connection goes away and closes it.
func (c *Conn) closeConn(cause error) {
	code := http2.ErrCodeNo
	var connErr ConnError
	var goAway GoAwayError
	if errors.As(cause, &connErr) && !errors.As(cause, &goAway) {
		code = connErr.Code
	}

	if err := c.nc.SetWriteDeadline(time.Now().Add(goAwayTimeout)); err == nil {
		_, _ = c.nc.Write(frameheader.GoAway(0, code, nil))
	}
	c.closeErr = c.nc.Close()
}

func (c *Conn) shutdown(err error) {
	endErr := streamsEndError(err, context.Cause(c.ctx))

	c.newStreamMu.Lock()
	c.closed = true
	c.err = endErr
	c.newStreamMu.Unlock()

	c.fcConn.Disable()
	c.limiter.Close()
	c.streams.Each(func(s types.Stream) {
		s.FC().Disable()
		s.End(endErr)
	})

	if errors.Is(endErr, ErrConnClosed) {
		c.log.Info("connection closed")
	} else {
		c.log.Warn("connection failed", zap.Error(endErr))
	}
	close(c.done)
}

func streamsEndError(runErr, cause error) error {
	var connErr ConnError
	switch {
	case errors.As(cause, &connErr):
		return connErr
	case errors.As(runErr, &connErr):
		return connErr
	case errors.Is(cause, ErrConnClosed):
		return ErrConnClosed
	case runErr == nil || errors.Is(runErr, context.Canceled):
		return ErrConnClosed
	default:
		return ConnError{http2.ErrCodeInternal, runErr}
	}
}

// Send opens a stream for req. Response and request body flow through h
// until ctx is done or the stream ends. An error means the stream was not
// opened; ErrConnClosed means the connection can no longer open streams.
func (c *Conn) Send(ctx context.Context, req *Request, h StreamHandler) (*Stream, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if !c.Alive() {
		return nil, ErrConnClosed
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(err, limiter.ErrClosed) {
			return nil, ErrConnClosed
		}
		return nil, err
	}

	c.newStreamMu.Lock()
	if c.closed || c.draining || c.nextID > maxStreamID {
		c.newStreamMu.Unlock()
		c.limiter.Release()
		return nil, ErrConnClosed
	}
	id := c.nextID
	c.nextID += 2

	req.writeHeaders(c.hpack)
	frames := c.hpack.AppendFrames(nil, id, req.EndStream, consts.DefaultMaxFrameSize)
	s := newStream(c, id, c.peerInitialWindow, h)
	s.localDone = req.EndStream
	c.streams.Set(id, s)
	err := c.sender.Send(sender.Frame{B: frames})
	c.newStreamMu.Unlock()

	if err != nil {
		if s.discard() {
			return nil, ErrConnClosed
		}
		// shutdown got to the stream first and has already ended it
		return s, nil
	}
	s.log.Debug("stream opened", zap.String("path", req.Path))

	s.cbMu.Lock()
	if !s.ended {
		s.stopCtx = context.AfterFunc(ctx, func() {
			s.Reset(http2.ErrCodeCancel, context.Cause(ctx))
		})
	}
	s.cbMu.Unlock()

	if !req.EndStream {
		go s.pump()
	}
	return s, nil
}

// Alive reports whether new streams can be opened.
func (c *Conn) Alive() bool {
	c.newStreamMu.Lock()
	defer c.newStreamMu.Unlock()
	return !c.closed && !c.draining
}

// Close closes the connection. Open streams end with ErrConnClosed.
func (c *Conn) Close() error {
	c.cancel(ErrConnClosed)
	<-c.done
	return c.closeErr
}

// Done is closed once the connection is closed and all streams ended.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the error open streams were ended with.
func (c *Conn) Err() error {
	c.newStreamMu.Lock()
	defer c.newStreamMu.Unlock()
	return c.err
}

func (c *Conn) applySettings(settings []http2.Setting) error {
	c.newStreamMu.Lock()
	defer c.newStreamMu.Unlock()

	for _, s := range settings {
		switch s.ID {
		case http2.SettingMaxConcurrentStreams:
			c.limiter.SetQuota(s.Val)
		case http2.SettingInitialWindowSize:
			delta := int64(s.Val) - c.peerInitialWindow
			c.peerInitialWindow = int64(s.Val)
			c.streams.Each(func(st types.Stream) { st.FC().Add(delta) })
		case http2.SettingHeaderTableSize:
			c.hpack.SetMaxDynamicTableSizeLimit(s.Val)
		}
	}
	c.log.Debug("peer settings applied", zap.Any("settings", settings))
	return nil
}

func (c *Conn) goAway(e GoAwayError) error {
	c.newStreamMu.Lock()
	c.draining = true
	c.newStreamMu.Unlock()
	c.log.Info("go away received",
		zap.Stringer("code", e.Code),
		zap.Uint32("last-stream", e.LastStreamID),
		zap.ByteString("debug", e.DebugData),
	)

	for _, s := range c.streams.Above(e.LastStreamID) {
		s.End(e)
	}
	if e.Code != http2.ErrCodeNo {
		return ConnError{e.Code, e}
	}
	c.streamClosed()
	return nil
}

// streamClosed closes a draining connection once its last stream is gone.
func (c *Conn) streamClosed() {
	c.newStreamMu.Lock()
	draining := c.draining && !c.closed
	c.newStreamMu.Unlock()
	if draining && c.streams.Len() == 0 {
		c.cancel(ErrConnClosed)
	}
}

// connHandler keeps connection level frame callbacks out of the Conn API.
type connHandler struct{ c *Conn }

func (h connHandler) OnSettings(settings []http2.Setting) error { return h.c.applySettings(settings) }
func (h connHandler) OnGoAway(err GoAwayError) error            { return h.c.goAway(err) }
