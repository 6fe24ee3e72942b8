// Package phout writes one phantom-format line per exchange.
package phout

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/http2"

	"github.com/ozontech/h2duplex/report"
	"github.com/ozontech/h2duplex/utils/pool"
)

var now = time.Now

type Reporter struct {
	mu      sync.RWMutex
	closed  bool
	w       *bufio.Writer
	ch      chan *streamState
	pool    *pool.SlicePool[*streamState]
	timeout time.Duration
}

var _ report.Reporter = (*Reporter)(nil)

// New reports exchanges that took longer than timeout as ETIMEDOUT. Zero
// timeout disables the check.
func New(w io.Writer, timeout time.Duration) *Reporter {
	return &Reporter{
		w:       bufio.NewWriter(w),
		ch:      make(chan *streamState, 256),
		pool:    pool.NewSlicePoolSize[*streamState](256),
		timeout: timeout,
	}
}

func (r *Reporter) Run() error {
	for s := range r.ch {
		_, err := r.w.Write(s.result())
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		r.pool.Release(s)
	}
	return r.w.Flush()
}

// Close stops Run once written lines are flushed. Exchanges ending later are
// not reported.
func (r *Reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	return nil
}

func (r *Reporter) Acquire(tag string) report.State {
	ss, ok := r.pool.Acquire()
	if !ok {
		ss = &streamState{
			reportLine: make([]byte, 128),
			reporter:   r,
			timeout:    r.timeout,
		}
	}
	ss.reset(tag)
	return ss
}

func (r *Reporter) accept(s *streamState) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.closed {
		r.ch <- s
	}
}

type streamState struct {
	reportLine []byte

	reporter *Reporter
	timeout  time.Duration

	status string

	ioErr         error
	rstStreamCode *http2.ErrCode
	goAwayCode    *http2.ErrCode

	sent       int
	received   int
	startTime  time.Time
	headerTime time.Time
	endTime    time.Time
	tag        string
}

func (s *streamState) reset(tag string) {
	s.tag = tag
	s.startTime = now()
	s.headerTime = time.Time{}

	s.status = ""

	s.ioErr = nil
	s.goAwayCode = nil
	s.rstStreamCode = nil
	s.sent = 0
	s.received = 0
}

func (s *streamState) Sent(n int)     { s.sent += n }
func (s *streamState) Received(n int) { s.received += n }

func (s *streamState) OnHeader(name, value string) {
	if name == ":status" && s.status == "" {
		s.status = value
		s.headerTime = now()
	}
}

func (s *streamState) IoError(err error) {
	s.ioErr = err
}

func (s *streamState) RSTStream(code http2.ErrCode) {
	s.rstStreamCode = &code
}

func (s *streamState) GoAway(code http2.ErrCode) {
	s.goAwayCode = &code
}

const (
	tabChar = '\t'

	errnoUnknown = 999
)

func (s *streamState) errno() syscall.Errno {
	var errNo syscall.Errno
	switch {
	case s.ioErr == nil:
		if s.timeout > 0 && s.endTime.Sub(s.startTime) > s.timeout {
			return syscall.ETIMEDOUT
		}
		return 0
	case errors.As(s.ioErr, &errNo):
		return errNo
	case errors.Is(s.ioErr, context.DeadlineExceeded):
		return syscall.ETIMEDOUT
	case errors.Is(s.ioErr, context.Canceled):
		return syscall.ECANCELED
	}
	return errnoUnknown
}

func (s *streamState) result() []byte {
	s.reportLine = s.reportLine[:0]
	s.reportLine = strconv.AppendInt(s.reportLine, s.startTime.Unix(), 10)
	s.reportLine = append(s.reportLine, '.')
	s.reportLine = strconv.AppendInt(s.reportLine, int64(s.startTime.Nanosecond()/1e6), 10)
	s.reportLine = append(s.reportLine, tabChar)
	s.reportLine = append(s.reportLine, s.tag...)
	s.reportLine = append(s.reportLine, tabChar)

	// rtt
	s.reportLine = strconv.AppendInt(s.reportLine, s.endTime.Sub(s.startTime).Microseconds(), 10)
	s.reportLine = append(s.reportLine, tabChar)
	// connect, send
	s.reportLine = append(s.reportLine, '0', tabChar, '0', tabChar)
	// latency: до заголовков ответа
	var latency, receive int64
	if !s.headerTime.IsZero() {
		latency = s.headerTime.Sub(s.startTime).Microseconds()
		receive = s.endTime.Sub(s.headerTime).Microseconds()
	}
	s.reportLine = strconv.AppendInt(s.reportLine, latency, 10)
	s.reportLine = append(s.reportLine, tabChar)
	s.reportLine = strconv.AppendInt(s.reportLine, receive, 10)
	s.reportLine = append(s.reportLine, tabChar)
	// interval event
	s.reportLine = append(s.reportLine, '0', tabChar)
	s.reportLine = strconv.AppendInt(s.reportLine, int64(s.sent), 10)
	s.reportLine = append(s.reportLine, tabChar)
	s.reportLine = strconv.AppendInt(s.reportLine, int64(s.received), 10)
	s.reportLine = append(s.reportLine, tabChar)
	s.reportLine = strconv.AppendInt(s.reportLine, int64(s.errno()), 10)
	s.reportLine = append(s.reportLine, tabChar)
	// proto code
	switch {
	case s.rstStreamCode != nil:
		s.reportLine = append(s.reportLine, "rst_"...)
		s.reportLine = strconv.AppendInt(s.reportLine, int64(*s.rstStreamCode), 10)
	case s.goAwayCode != nil:
		s.reportLine = append(s.reportLine, "goaway_"...)
		s.reportLine = strconv.AppendInt(s.reportLine, int64(*s.goAwayCode), 10)
	case s.status != "":
		s.reportLine = append(s.reportLine, s.status...)
	default:
		s.reportLine = append(s.reportLine, '0')
	}
	s.reportLine = append(s.reportLine, '\n')
	return s.reportLine
}

func (s *streamState) End() {
	s.endTime = now()
	s.reporter.accept(s)
}
