package sender

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/ozontech/h2duplex/consts"
	"github.com/ozontech/h2duplex/transport/types"
)

var ErrClosed = errors.New("sender closed")

// Frame is one or more whole frames written as a single chunk. HEADERS and
// its CONTINUATION frames travel together so nothing can be written between
// them. Releaser, if set, is released once the chunk is written.
type Frame struct {
	B []byte
	types.Releaser
}

type writeCmd struct {
	bufs      net.Buffers
	onRelease func()
}

type Sender struct {
	conn io.Writer

	writeCmdChan chan writeCmd

	priorityFrameChan chan []byte
	frameChan         chan Frame
	done              chan struct{}
}

func NewSender(conn io.Writer) *Sender {
	return &Sender{
		conn,

		make(chan writeCmd),
		make(chan []byte, consts.FrameChanSize),
		make(chan Frame, consts.FrameChanSize),
		make(chan struct{}),
	}
}

// Run writes queued frames until ctx is done or a write fails.
func (s *Sender) Run(ctx context.Context) error {
	defer close(s.done)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.processLoop(ctx)
	return s.sendLoop(ctx)
}

// Send queues stream frames. Frames are written in the order they are sent.
func (s *Sender) Send(f Frame) error {
	if s.stopped() {
		return ErrClosed
	}
	select {
	case s.frameChan <- f:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// SendPriority queues a connection control frame ahead of stream frames.
func (s *Sender) SendPriority(b []byte) error {
	if s.stopped() {
		return ErrClosed
	}
	select {
	case s.priorityFrameChan <- b:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

func (s *Sender) Done() <-chan struct{} { return s.done }

// stopped is checked before queueing: once done is closed a select on both
// channels may still pick the buffered one and drop the frame.
func (s *Sender) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Sender) sendLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-s.writeCmdChan:
			_, err := cmd.bufs.WriteTo(s.conn)
			cmd.onRelease()
			if err != nil {
				return err
			}
		}
	}
}

func (s *Sender) processLoop(ctx context.Context) {
	var (
		writeCmdChan      chan<- writeCmd = s.writeCmdChan
		priorityChunkChan <-chan []byte   = s.priorityFrameChan
		frameChan         <-chan Frame    = s.frameChan
	)

	rotator := newRotator()
	buffers, releasers := rotator.Rotate()

	doWrite := func() bool {
		b := net.Buffers(buffers)
		if b[0] == nil {
			b = b[1:]
		}
		if len(b) == 0 {
			return true
		}

		select {
		case writeCmdChan <- writeCmd{b, releasers.Release}:
		case <-ctx.Done():
			return false
		}
		buffers, releasers = rotator.Rotate()
		return true
	}
	add := func(f Frame) {
		buffers = append(buffers, f.B)
		if f.Releaser != nil {
			releasers = append(releasers, f.Releaser)
		}
	}
	addPriority := func(b []byte) bool {
		// если получили приоритетный фрейм, то он должен записаться первым
		if buffers[0] != nil && !doWrite() {
			return false
		}
		buffers[0] = b
		return true
	}

	for {
		// ждем первый фрейм пачки
		select {
		case b := <-priorityChunkChan:
			if !addPriority(b) {
				return
			}
		case f := <-frameChan:
			add(f)
		case <-ctx.Done():
			return
		}

		// добираем все, что уже есть в очередях, без ожидания
	batch:
		for len(buffers) < cap(buffers) {
			select {
			case b := <-priorityChunkChan:
				if !addPriority(b) {
					return
				}
			default:
				select {
				case b := <-priorityChunkChan:
					if !addPriority(b) {
						return
					}
				case f := <-frameChan:
					add(f)
				default:
					break batch
				}
			}
		}

		if !doWrite() {
			return
		}
	}
}

type rotatorItem struct {
	buffers   [consts.ChunksBufferSize][]byte
	releasers [consts.ChunksBufferSize]types.Releaser
}
type rotator struct {
	// net.Buffers.WriteTo может уменьшать капасити слайса,
	// поэтому, чтобы переиспользовать память используется массив, с которого создается слайс
	current *rotatorItem
	next    *rotatorItem
}

func newRotator() *rotator {
	return &rotator{new(rotatorItem), new(rotatorItem)}
}

// Rotate returns empty buffers with slot 0 reserved for a priority frame.
func (r *rotator) Rotate() ([][]byte, releasers) {
	r.current, r.next = r.next, r.current
	r.current.buffers[0] = nil
	clear(r.current.releasers[:])
	return r.current.buffers[:1], r.current.releasers[:0]
}

type releasers []types.Releaser

func (rr releasers) Release() {
	for _, r := range rr {
		r.Release()
	}
}
