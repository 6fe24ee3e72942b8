package supersimple

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/net/http2"
)

func TestSupersimple(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	b := new(bytes.Buffer)
	r := New(b, time.Minute)

	s := r.Acquire("")
	s.Sent(1024)
	s.OnHeader(":status", "200")
	s.Received(2048)
	s.End()

	s = r.Acquire("")
	s.OnHeader(":status", "503")
	s.End()

	s = r.Acquire("")
	s.OnHeader(":status", "200")
	s.RSTStream(http2.ErrCodeCancel)
	s.End()

	s = r.Acquire("")
	s.IoError(errors.New("eof"))
	s.End()

	r.Acquire("") // in flight

	a.EqualValues(1, r.ok.Load())
	a.EqualValues(3, r.nook.Load())
	a.EqualValues(5, r.req.Load())
	a.EqualValues(1024, r.sent.Load())
	a.EqualValues(2048, r.received.Load())

	done := make(chan error)
	go func() { done <- r.Run() }()
	a.NoError(r.Close())
	a.NoError(<-done)

	out := b.String()
	a.True(strings.HasPrefix(out, "total\n"), out)
	a.Contains(out, "total=4 ok=1 nook=3 req=5")
}
