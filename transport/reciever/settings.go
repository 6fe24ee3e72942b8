package reciever

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/net/http2"

	"github.com/ozontech/h2duplex/consts"
)

var errSettingsLength = errors.New("settings payload is not a multiple of 6")

// ParseSettings decodes and validates a SETTINGS payload.
func ParseSettings(payload []byte) ([]http2.Setting, error) {
	if len(payload)%6 != 0 {
		return nil, ConnError{http2.ErrCodeFrameSize, errSettingsLength}
	}

	settings := make([]http2.Setting, 0, len(payload)/6)
	for ; len(payload) > 0; payload = payload[6:] {
		s := http2.Setting{
			ID:  http2.SettingID(binary.BigEndian.Uint16(payload)),
			Val: binary.BigEndian.Uint32(payload[2:]),
		}
		if err := validateSetting(s); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, nil
}

func validateSetting(s http2.Setting) error {
	switch s.ID {
	case http2.SettingEnablePush:
		if s.Val > 1 {
			return ConnError{http2.ErrCodeProtocol, fmt.Errorf("invalid %s", s)}
		}
	case http2.SettingInitialWindowSize:
		if s.Val > consts.MaxWindowSize {
			return ConnError{http2.ErrCodeFlowControl, fmt.Errorf("invalid %s", s)}
		}
	case http2.SettingMaxFrameSize:
		if s.Val < consts.DefaultMaxFrameSize || s.Val > consts.MaxFrameSizeHigh {
			return ConnError{http2.ErrCodeProtocol, fmt.Errorf("invalid %s", s)}
		}
	}
	return nil
}
