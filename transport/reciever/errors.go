package reciever

import (
	"strconv"

	"golang.org/x/net/http2"
)

type GoAwayError struct {
	Code         http2.ErrCode
	LastStreamID uint32
	DebugData    []byte
}

func (e GoAwayError) Error() string {
	return "go away (" + e.Code.String() + "): " + string(e.DebugData)
}

type RSTStreamError struct {
	Code http2.ErrCode
}

func (e RSTStreamError) Error() string {
	return "rst stream: " + e.Code.String()
}

// ConnError is a connection level protocol error detected locally.
// The connection is closed with GOAWAY carrying Code.
type ConnError struct {
	Code http2.ErrCode
	Err  error
}

func (e ConnError) Error() string {
	return "connection error (" + e.Code.String() + "): " + e.Err.Error()
}

func (e ConnError) Unwrap() error { return e.Err }

// StreamError is a stream level protocol error detected locally.
// The stream is reset with Code.
type StreamError struct {
	StreamID uint32
	Code     http2.ErrCode
	Err      error
}

func (e StreamError) Error() string {
	return "stream " + strconv.FormatUint(uint64(e.StreamID), 10) +
		" error (" + e.Code.String() + "): " + e.Err.Error()
}

func (e StreamError) Unwrap() error { return e.Err }
