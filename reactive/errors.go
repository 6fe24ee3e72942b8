package reactive

import (
	"errors"
	"fmt"
)

var ErrCancelled = errors.New("subscription cancelled")

type NonPositiveRequestError struct {
	N int64
}

func (e *NonPositiveRequestError) Error() string {
	return fmt.Sprintf("non-positive request: %d", e.N)
}
