package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/multierr"

	"github.com/ozontech/h2duplex/consts"
)

type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Config struct {
	WindowSize        int           // stream receive window, announced as SETTINGS_INITIAL_WINDOW_SIZE
	ConnWindowSize    int           // connection receive window
	MaxFrameSize      int           // announced SETTINGS_MAX_FRAME_SIZE
	MaxHeaderListSize uint32        // announced SETTINGS_MAX_HEADER_LIST_SIZE
	HeaderTableSize   uint32        // hpack decoder table size
	ReadBufferSize    int           // size of each of the two read buffers
	DialTimeout       time.Duration // dial and handshake timeout
	Dialer            Dialer
}

func DefaultConfig() Config {
	return Config{
		WindowSize:        consts.DefaultWindowSize,
		ConnWindowSize:    consts.DefaultConnWindowSize,
		MaxFrameSize:      consts.DefaultMaxFrameSize,
		MaxHeaderListSize: consts.DefaultMaxHeaderListSize,
		HeaderTableSize:   consts.DefaultHeaderTableSize,
		ReadBufferSize:    consts.RecieveBufferSize,
		DialTimeout:       consts.DefaultTimeout,
		Dialer:            &net.Dialer{},
	}
}

func (c Config) Validate() error {
	var err error
	if c.WindowSize <= 0 || c.WindowSize > consts.MaxWindowSize {
		err = multierr.Append(err, fmt.Errorf("window size %d out of range (0, %d]", c.WindowSize, consts.MaxWindowSize))
	}
	if c.ConnWindowSize < consts.DefaultInitialWindowSize || c.ConnWindowSize > consts.MaxWindowSize {
		err = multierr.Append(err, fmt.Errorf(
			"connection window size %d out of range [%d, %d]",
			c.ConnWindowSize, consts.DefaultInitialWindowSize, consts.MaxWindowSize,
		))
	}
	if c.MaxFrameSize < consts.DefaultMaxFrameSize || c.MaxFrameSize > consts.MaxFrameSizeHigh {
		err = multierr.Append(err, fmt.Errorf(
			"max frame size %d out of range [%d, %d]",
			c.MaxFrameSize, consts.DefaultMaxFrameSize, consts.MaxFrameSizeHigh,
		))
	}
	if c.ReadBufferSize <= 0 {
		err = multierr.Append(err, errors.New("read buffer size must be positive"))
	}
	if c.Dialer == nil {
		err = multierr.Append(err, errors.New("dialer is not set"))
	}
	return err
}
