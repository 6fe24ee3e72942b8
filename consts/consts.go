package consts

import (
	"math"
	"time"
)

const (
	RecieveBufferSize = 32 << 10
	ChunksBufferSize  = 64
	FrameChanSize     = 64

	DefaultInitialWindowSize = 65_535
	DefaultTimeout           = 11 * time.Second
	DefaultMaxFrameSize      = 16384 // DefaultMaxFrameSize - минимально допустимый SETTINGS_MAX_FRAME_SIZE, больше исходящие фреймы не бывают.
	DefaultMaxHeaderListSize = math.MaxUint32
	DefaultHeaderTableSize   = 4096

	DefaultWindowSize     = 4 << 20
	DefaultConnWindowSize = 16 << 20
	DefaultChunkSize      = 64 << 10

	MaxWindowSize    = 1<<31 - 1
	MaxFrameSizeHigh = 1<<24 - 1
)
