package reciever

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
)

// Reciever reads the connection into two alternating buffers: while the
// processor works on one of them the next read goes into the other. Payload
// handed to the streams is therefore only valid during the callback.
type Reciever struct {
	conn      io.Reader
	buf1      []byte
	buf2      []byte
	processor *Processor
}

func NewReciever(conn io.Reader, bufSize int, processor *Processor) *Reciever {
	return &Reciever{
		conn,
		make([]byte, bufSize),
		make([]byte, bufSize),
		processor,
	}
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Run returns once the processor fails, the connection read fails or ctx is
// done. A read blocked on the connection is interrupted through its read
// deadline.
func (r *Reciever) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if d, ok := r.conn.(readDeadliner); ok {
		stop := context.AfterFunc(ctx, func() { _ = d.SetReadDeadline(time.Now()) })
		defer stop()
	}

	ch := make(chan []byte)
	g.Go(func() error {
		return r.processor.Run(ch)
	})
	g.Go(func() error {
		defer close(ch)
		for ctx.Err() == nil {
			err := r.read(ctx, ch, r.buf1)
			if err != nil {
				return err
			}
			err = r.read(ctx, ch, r.buf2)
			if err != nil {
				return err
			}
		}
		return nil
	})
	return g.Wait()
}

func (r *Reciever) read(ctx context.Context, ch chan<- []byte, b []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	n, err := r.conn.Read(b)
	if err != nil {
		return fmt.Errorf("reading error: %w", err)
	}
	b = b[:n]

	select {
	case ch <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
