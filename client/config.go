package client

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/ozontech/h2duplex/consts"
	"github.com/ozontech/h2duplex/transport"
	"github.com/ozontech/h2duplex/utils/bytesize"
)

type Config struct {
	// Window is the ceiling of both body bridges and the stream receive
	// window announced to servers.
	Window            bytesize.ByteSize `yaml:"window"`
	ConnWindow        bytesize.ByteSize `yaml:"conn_window"`
	MaxFrameSize      bytesize.ByteSize `yaml:"max_frame_size"`
	MaxHeaderListSize bytesize.ByteSize `yaml:"max_header_list_size"`
	HeaderTableSize   bytesize.ByteSize `yaml:"header_table_size"`
	ReadBuffer        bytesize.ByteSize `yaml:"read_buffer"`
	DialTimeout       time.Duration     `yaml:"dial_timeout"`
	UserAgent         string            `yaml:"user_agent"`
}

func DefaultConfig() Config {
	return Config{
		Window:            consts.DefaultWindowSize,
		ConnWindow:        consts.DefaultConnWindowSize,
		MaxFrameSize:      consts.DefaultMaxFrameSize,
		MaxHeaderListSize: consts.DefaultMaxHeaderListSize,
		HeaderTableSize:   consts.DefaultHeaderTableSize,
		ReadBuffer:        consts.RecieveBufferSize,
		DialTimeout:       consts.DefaultTimeout,
		UserAgent:         "h2duplex",
	}
}

// LoadConfig reads a YAML config. Keys it does not set keep their defaults.
func LoadConfig(r io.Reader) (Config, error) {
	conf := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&conf); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return conf, conf.Validate()
}

func (c Config) Validate() error {
	var err error
	if c.MaxHeaderListSize > consts.DefaultMaxHeaderListSize {
		err = multierr.Append(err, fmt.Errorf("max header list size %s is too large", c.MaxHeaderListSize))
	}
	if c.HeaderTableSize > consts.DefaultMaxHeaderListSize {
		err = multierr.Append(err, fmt.Errorf("header table size %s is too large", c.HeaderTableSize))
	}
	if c.DialTimeout <= 0 {
		err = multierr.Append(err, errors.New("dial timeout must be positive"))
	}
	return multierr.Append(err, c.transport().Validate())
}

func (c Config) transport() transport.Config {
	conf := transport.DefaultConfig()
	conf.WindowSize = c.Window.Int()
	conf.ConnWindowSize = c.ConnWindow.Int()
	conf.MaxFrameSize = c.MaxFrameSize.Int()
	conf.MaxHeaderListSize = uint32(min(c.MaxHeaderListSize, consts.DefaultMaxHeaderListSize))
	conf.HeaderTableSize = uint32(min(c.HeaderTableSize, consts.DefaultMaxHeaderListSize))
	conf.ReadBufferSize = c.ReadBuffer.Int()
	conf.DialTimeout = c.DialTimeout
	return conf
}
