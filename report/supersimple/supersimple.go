// Package supersimple prints exchange totals once a second.
package supersimple

import (
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/net/http2"

	"github.com/ozontech/h2duplex/report"
	"github.com/ozontech/h2duplex/utils/pool"
)

type Reporter struct {
	w       io.Writer
	pool    *pool.SlicePool[*streamState]
	closeCh chan struct{}

	timeout time.Duration

	start    time.Time
	ok       atomic.Uint32
	nook     atomic.Uint32
	req      atomic.Uint32
	sent     atomic.Uint64
	received atomic.Uint64

	last     counters
	lastTime time.Time
}

type counters struct {
	ok, nook, req  uint32
	sent, received uint64
}

var _ report.Reporter = (*Reporter)(nil)

// New counts an exchange as ok when it got a 2xx or 3xx status, ended without
// error and took no longer than timeout. Zero timeout disables the check.
func New(w io.Writer, timeout time.Duration) *Reporter {
	now := time.Now()
	return &Reporter{
		w:        w,
		pool:     pool.NewSlicePoolSize[*streamState](100),
		closeCh:  make(chan struct{}),
		start:    now,
		lastTime: now,
		timeout:  timeout,
	}
}

func (a *Reporter) Run() error {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	defer a.total()
	for {
		select {
		case now := <-t.C:
			a.report(now)
		case <-a.closeCh:
			return nil
		}
	}
}

func (a *Reporter) Close() error {
	close(a.closeCh)
	return nil
}

func (a *Reporter) Acquire(tag string) report.State {
	a.req.Add(1)
	ss, ok := a.pool.Acquire()
	if !ok {
		ss = &streamState{reporter: a}
	}
	ss.reset(tag)
	return ss
}

func (a *Reporter) accept(s *streamState) {
	if s.result() {
		a.ok.Add(1)
	} else {
		a.nook.Add(1)
	}

	a.pool.Release(s)
}

func (a *Reporter) load() counters {
	return counters{a.ok.Load(), a.nook.Load(), a.req.Load(), a.sent.Load(), a.received.Load()}
}

func (a *Reporter) write(c counters, d time.Duration) {
	total := c.ok + c.nook
	miliSeconds := d.Milliseconds()
	if miliSeconds > 0 {
		fmt.Fprintf(a.w,
			"total=%d ok=%d nook=%d req=%d sent=%s/s received=%s/s req/s=%.2f resp/s=%.2f\n",
			total, c.ok, c.nook, c.req,
			humanize.IBytes(c.sent*1000/uint64(miliSeconds)),
			humanize.IBytes(c.received*1000/uint64(miliSeconds)),
			float64(c.req)*1000/float64(miliSeconds), float64(total)*1000/float64(miliSeconds),
		)
	} else {
		fmt.Fprintf(a.w, "total=%d ok=%d nook=%d req=%d\n", total, c.ok, c.nook, c.req)
	}
}

func (a *Reporter) total() {
	fmt.Fprintln(a.w, "total")
	a.write(a.load(), time.Since(a.start))
}

func (a *Reporter) report(now time.Time) {
	c, period := a.load(), now.Sub(a.lastTime)
	a.write(counters{
		c.ok - a.last.ok, c.nook - a.last.nook, c.req - a.last.req,
		c.sent - a.last.sent, c.received - a.last.received,
	}, period)
	a.last, a.lastTime = c, now
}

type streamState struct {
	reporter *Reporter
	noOk     bool
	status   int
	start    time.Time
}

func (s *streamState) reset(_ string) {
	s.start = time.Now()
	s.noOk = false
	s.status = 0
}

func (s *streamState) Sent(n int)     { s.reporter.sent.Add(uint64(n)) }
func (s *streamState) Received(n int) { s.reporter.received.Add(uint64(n)) }

func (s *streamState) OnHeader(name, value string) {
	if name == ":status" && s.status == 0 {
		s.status, _ = strconv.Atoi(value)
	}
}

func (s *streamState) IoError(error)           { s.noOk = true }
func (s *streamState) RSTStream(http2.ErrCode) { s.noOk = true }
func (s *streamState) GoAway(http2.ErrCode)    { s.noOk = true }

func (s *streamState) result() (ok bool) {
	if s.noOk || s.status < 200 || s.status >= 400 {
		return false
	}
	if s.reporter.timeout > 0 && time.Since(s.start) > s.reporter.timeout {
		return false
	}
	return true
}

func (s *streamState) End() {
	s.reporter.accept(s)
}
