package transport

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/ozontech/h2duplex/consts"
	"github.com/ozontech/h2duplex/frameheader"
	"github.com/ozontech/h2duplex/transport/flowcontrol"
	"github.com/ozontech/h2duplex/transport/sender"
	"github.com/ozontech/h2duplex/transport/types"
)

type HeaderBlock uint8

const (
	BlockMain          HeaderBlock = iota // final response headers
	BlockInformational                    // 1xx response
	BlockTrailing                         // trailers
)

func (b HeaderBlock) String() string {
	switch b {
	case BlockMain:
		return "main"
	case BlockInformational:
		return "informational"
	case BlockTrailing:
		return "trailing"
	}
	return "HeaderBlock(" + strconv.Itoa(int(b)) + ")"
}

// StreamHandle is the part of a stream its handler may use.
type StreamHandle interface {
	ID() uint32
	// IncrementWindow returns n consumed bytes to the stream receive window.
	IncrementWindow(n int)
	// Cancel resets the stream. It must not be called from inside a
	// StreamHandler callback of the same stream.
	Cancel(err error)
}

// StreamHandler is driven by a stream. Response callbacks are serialized and
// come from the connection receive goroutine; request body pulls come from
// the stream's own goroutine.
type StreamHandler interface {
	// OnResponseHeaders gets one decoded header block. fields are reused
	// after the call returns.
	OnResponseHeaders(s StreamHandle, block HeaderBlock, fields []hpack.HeaderField)
	// OnResponseHeadersDone follows the main header block.
	OnResponseHeadersDone(s StreamHandle, hasBody bool)
	// OnResponseBody gets a body fragment. b is only valid during the call.
	// Consumed bytes must be returned with IncrementWindow.
	OnResponseBody(s StreamHandle, b []byte)
	// OnResponseComplete is called exactly once. err is nil if the response
	// completed.
	OnResponseComplete(s StreamHandle, err error)

	// SendRequestBody fills out with request body bytes. done reports that
	// nothing will follow what was copied.
	SendRequestBody(s StreamHandle, out []byte) (n int, done bool, err error)
	// RequestBodyReady is signalled when SendRequestBody may make progress.
	RequestBodyReady() <-chan struct{}
}

type Stream struct {
	id      uint32
	conn    *Conn
	handler StreamHandler
	fc      *flowcontrol.FlowControl
	log     *zap.Logger

	cbMu     sync.Mutex
	ended    bool
	gotMain  bool
	stopCtx  func() bool
	done     chan struct{}
	finished atomic.Bool

	inflowMu   sync.Mutex
	recvAvail  int
	recvUnsent int

	sendMu    sync.Mutex
	localDone bool // END_STREAM или RST_STREAM уже отправлены
	rstSent   bool
}

var _ types.Stream = (*Stream)(nil)

func newStream(c *Conn, id uint32, sendWindow int64, h StreamHandler) *Stream {
	return &Stream{
		id:        id,
		conn:      c,
		handler:   h,
		fc:        flowcontrol.NewFlowControl(sendWindow),
		log:       c.log.With(zap.Uint32("stream", id)),
		done:      make(chan struct{}),
		recvAvail: c.conf.WindowSize,
	}
}

func (s *Stream) ID() uint32            { return s.id }
func (s *Stream) FC() types.FlowControl { return s.fc }

// Done is closed when the stream has ended.
func (s *Stream) Done() <-chan struct{} { return s.done }

func (s *Stream) Cancel(err error) {
	if err == nil {
		err = ErrStreamCancelled
	}
	s.Reset(http2.ErrCodeCancel, err)
}

// Reset ends the stream locally and sends RST_STREAM with code.
func (s *Stream) Reset(code http2.ErrCode, err error) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.finishLocked(err, true, code)
}

// End is called by the connection. StreamError resets the stream, other
// errors mean the peer already knows.
func (s *Stream) End(err error) {
	var streamErr StreamError
	rst := errors.As(err, &streamErr)

	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.finishLocked(err, rst, streamErr.Code)
}

// discard drops a stream whose HEADERS were never written. The handler is
// not notified. It reports false if the stream had already ended.
func (s *Stream) discard() bool {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.ended {
		return false
	}
	s.ended = true
	s.finished.Store(true)
	close(s.done)
	s.conn.streams.Delete(s.id)
	s.conn.limiter.Release()
	s.conn.streamClosed()
	return true
}

func (s *Stream) OnHeaders(fields []hpack.HeaderField, endStream bool) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.ended {
		return
	}

	if s.gotMain {
		if !endStream {
			s.protocolErrorLocked(errors.New("trailers without END_STREAM"))
			return
		}
		s.handler.OnResponseHeaders(s, BlockTrailing, fields)
		s.remoteEndLocked()
		return
	}

	status, err := statusOf(fields)
	if err != nil {
		s.protocolErrorLocked(err)
		return
	}
	if status < 200 {
		if endStream {
			s.protocolErrorLocked(errors.New("informational response with END_STREAM"))
			return
		}
		s.handler.OnResponseHeaders(s, BlockInformational, fields)
		return
	}

	s.gotMain = true
	s.handler.OnResponseHeaders(s, BlockMain, fields)
	s.handler.OnResponseHeadersDone(s, !endStream)
	if endStream {
		s.remoteEndLocked()
	}
}

func statusOf(fields []hpack.HeaderField) (int, error) {
	for _, f := range fields {
		if f.Name != ":status" {
			continue
		}
		status, err := strconv.Atoi(f.Value)
		if err != nil || status < 100 || status > 999 {
			return 0, fmt.Errorf("malformed :status %q", f.Value)
		}
		return status, nil
	}
	return 0, errors.New("missing :status")
}

func (s *Stream) OnDataStart(length int) bool {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.ended {
		return false
	}
	if !s.gotMain {
		s.protocolErrorLocked(errors.New("DATA before response headers"))
		return false
	}

	s.inflowMu.Lock()
	ok := length <= s.recvAvail
	if ok {
		s.recvAvail -= length
	}
	s.inflowMu.Unlock()

	if !ok {
		s.finishLocked(StreamError{s.id, http2.ErrCodeFlowControl, errors.New("receive window exceeded")}, true, http2.ErrCodeFlowControl)
	}
	return ok
}

func (s *Stream) OnData(b []byte) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.ended {
		return
	}
	s.handler.OnResponseBody(s, b)
}

func (s *Stream) OnDataEnd(padding int, endStream bool) {
	if padding > 0 {
		s.IncrementWindow(padding)
	}
	if !endStream {
		return
	}

	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.remoteEndLocked()
}

// IncrementWindow returns consumed bytes to the peer. WINDOW_UPDATE is only
// sent once at least 4KiB or half of the window is pending.
func (s *Stream) IncrementWindow(n int) {
	if n <= 0 {
		return
	}

	s.inflowMu.Lock()
	s.recvUnsent += n
	var increment int
	if s.recvUnsent >= 4<<10 || s.recvUnsent >= s.recvAvail {
		increment = s.recvUnsent
		s.recvAvail += increment
		s.recvUnsent = 0
	}
	s.inflowMu.Unlock()

	if increment == 0 || s.finished.Load() {
		return
	}
	err := s.conn.sender.Send(sender.Frame{B: frameheader.WindowUpdate(s.id, uint32(increment))})
	if err != nil {
		s.log.Debug("window update not sent", zap.Error(err))
	}
}

func (s *Stream) protocolErrorLocked(err error) {
	s.finishLocked(StreamError{s.id, http2.ErrCodeProtocol, err}, true, http2.ErrCodeProtocol)
}

// remoteEndLocked handles END_STREAM from the peer. A request body still in
// flight is no longer needed.
func (s *Stream) remoteEndLocked() {
	s.sendMu.Lock()
	rst := !s.localDone
	s.sendMu.Unlock()
	s.finishLocked(nil, rst, http2.ErrCodeNo)
}

func (s *Stream) finishLocked(err error, rst bool, code http2.ErrCode) {
	if s.ended {
		return
	}
	s.ended = true
	s.finished.Store(true)
	close(s.done)
	if s.stopCtx != nil {
		s.stopCtx()
	}
	if rst {
		s.sendRST(code)
	}

	s.conn.streams.Delete(s.id)
	s.conn.limiter.Release()

	if err != nil {
		s.log.Debug("stream ended", zap.Error(err))
	} else {
		s.log.Debug("stream completed")
	}
	s.handler.OnResponseComplete(s, err)
	s.conn.streamClosed()
}

func (s *Stream) sendRST(code http2.ErrCode) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.rstSent {
		return
	}
	s.rstSent = true
	s.localDone = true
	err := s.conn.sender.Send(sender.Frame{B: frameheader.RSTStream(s.id, code)})
	if err != nil {
		s.log.Debug("rst stream not sent", zap.Error(err))
	}
}

type dataFrame struct {
	c *Conn
	b []byte
}

func (f dataFrame) Release() { f.c.dataPool.Release(f.b) }

// pump sends the request body as DATA frames while the send windows allow.
func (s *Stream) pump() {
	ready := s.handler.RequestBodyReady()
	for {
		_, done, err := s.handler.SendRequestBody(s, nil)
		if err != nil {
			s.Reset(http2.ErrCodeCancel, err)
			return
		}
		if done {
			s.sendData(nil, true)
			return
		}

		n, ok := s.fc.Take(s.done, consts.DefaultMaxFrameSize)
		if !ok {
			return
		}
		m, ok := s.conn.fcConn.Take(s.done, n)
		if !ok {
			s.fc.Add(int64(n))
			return
		}
		s.fc.Add(int64(n - m))

		buf := s.conn.dataPool.Acquire(frameheader.Size + m)
		filled, done, err := s.handler.SendRequestBody(s, buf[frameheader.Size:])
		if unused := m - filled; unused > 0 {
			s.fc.Add(int64(unused))
			s.conn.fcConn.Add(int64(unused))
		}
		if err != nil {
			s.conn.dataPool.Release(buf)
			s.Reset(http2.ErrCodeCancel, err)
			return
		}
		if filled == 0 && !done {
			s.conn.dataPool.Release(buf)
			select {
			case <-ready:
				continue
			case <-s.done:
				return
			}
		}

		if !s.sendData(buf[:frameheader.Size+filled], done) || done {
			return
		}
	}
}

// sendData queues one DATA frame. buf is nil or a pooled buffer with room
// for the frame header.
func (s *Stream) sendData(buf []byte, endStream bool) bool {
	if buf == nil {
		buf = make([]byte, frameheader.Size)
	}
	var flags http2.Flags
	if endStream {
		flags = http2.FlagDataEndStream
	}
	frameheader.FrameHeader(buf).Fill(len(buf)-frameheader.Size, http2.FrameData, flags, s.id)

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.localDone {
		s.conn.dataPool.Release(buf)
		return false
	}
	s.localDone = endStream
	err := s.conn.sender.Send(sender.Frame{B: buf, Releaser: dataFrame{s.conn, buf}})
	if err != nil {
		s.log.Debug("data not sent", zap.Error(err))
		return false
	}
	return true
}
