package transport

import (
	"errors"

	"github.com/ozontech/h2duplex/transport/reciever"
)

type (
	GoAwayError    = reciever.GoAwayError
	RSTStreamError = reciever.RSTStreamError
	ConnError      = reciever.ConnError
	StreamError    = reciever.StreamError
)

var (
	// ErrConnClosed is returned for streams that could not be opened or
	// were still open when the connection went away without a reason.
	ErrConnClosed = errors.New("connection closed")
	// ErrStreamCancelled ends streams reset by the caller.
	ErrStreamCancelled = errors.New("stream cancelled")
)
