package exchange

import (
	"errors"
	"strconv"
)

var ErrPending = errors.New("exchange is not settled")

// Error is the terminal error of an exchange.
type Error struct {
	ExchangeID uint64
	Err        error
}

func (e *Error) Error() string {
	return "exchange " + strconv.FormatUint(e.ExchangeID, 10) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
