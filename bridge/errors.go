package bridge

import (
	"errors"
	"fmt"
)

// Protocol violations. They are raised with panic: each one means a party
// broke its contract with the bridge and no recovery is meaningful.
var (
	ErrDoubleSubscribe  = errors.New("bridge: request body producer subscribed twice")
	ErrUnrequestedChunk = errors.New("bridge: request body chunk emitted without demand")
	ErrQueueAfterEnd    = errors.New("bridge: response body chunk queued after end of stream")
)

var (
	// ErrAlreadySubscribed is signalled to a second response body subscriber.
	ErrAlreadySubscribed = errors.New("bridge: response body already has a subscriber")
	// ErrCancelled is returned by a fill after the request body was cancelled.
	ErrCancelled = errors.New("bridge: request body cancelled")
)

type OverrunError struct {
	Direction Direction
	Queued    int
	Requested int
	Ceiling   int
}

func (e *OverrunError) Error() string {
	return fmt.Sprintf(
		"bridge: %s window overrun: %d queued + %d > ceiling %d",
		e.Direction, e.Queued, e.Requested, e.Ceiling,
	)
}

type UnderrunError struct {
	Direction Direction
	Queued    int
	Released  int
}

func (e *UnderrunError) Error() string {
	return fmt.Sprintf("bridge: %s window underrun: release %d of %d queued", e.Direction, e.Released, e.Queued)
}

// ProducerError carries an error signalled by the request body producer.
type ProducerError struct {
	Err error
}

func (e *ProducerError) Error() string { return "request body producer: " + e.Err.Error() }
func (e *ProducerError) Unwrap() error { return e.Err }
