package frameheader

import (
	"encoding/binary"
	"strconv"

	"golang.org/x/net/http2"
)

const Size = 9

type FrameHeader []byte

func NewFrameHeader() FrameHeader { return make([]byte, Size) }

func (f FrameHeader) Fill(
	length int,
	t http2.FrameType,
	flags http2.Flags,
	streamID uint32,
) {
	_ = f[8]
	f[0] = byte(length >> 16)
	f[1] = byte(length >> 8)
	f[2] = byte(length)
	f[3] = byte(t)
	f[4] = byte(flags)
	binary.BigEndian.PutUint32(f[5:], streamID&(1<<31-1))
}

func (f FrameHeader) Length() int {
	_ = f[2]
	return int(f[0])<<16 | int(f[1])<<8 | int(f[2])
}

func (f FrameHeader) SetLength(l int) {
	_ = f[2]
	f[0] = byte(l >> 16)
	f[1] = byte(l >> 8)
	f[2] = byte(l)
}

func (f FrameHeader) Type() http2.FrameType     { return http2.FrameType(f[3]) }
func (f FrameHeader) SetType(t http2.FrameType) { f[3] = byte(t) }

func (f FrameHeader) Flags() http2.Flags        { return http2.Flags(f[4]) }
func (f FrameHeader) SetFlags(flag http2.Flags) { f[4] = byte(flag) }

// StreamID returns the stream identifier with the reserved bit masked off.
func (f FrameHeader) StreamID() uint32 { return binary.BigEndian.Uint32(f[5:]) & (1<<31 - 1) }
func (f FrameHeader) SetStreamID(streamID uint32) {
	binary.BigEndian.PutUint32(f[5:], streamID&(1<<31-1))
}

// Padded reports whether the payload starts with a pad length octet.
// DATA and HEADERS share the flag bit.
func (f FrameHeader) Padded() bool {
	t := f.Type()
	return (t == http2.FrameData || t == http2.FrameHeaders) && f.Flags().Has(http2.FlagDataPadded)
}

// PrefixLen returns the number of payload octets preceding the frame data,
// not counting the pad length octet.
func (f FrameHeader) PrefixLen() int {
	if f.Type() == http2.FrameHeaders && f.Flags().Has(http2.FlagHeadersPriority) {
		return 5
	}
	return 0
}

func (f FrameHeader) String() string {
	return f.Type().String() +
		" length=" + strconv.Itoa(f.Length()) +
		" stream=" + strconv.FormatUint(uint64(f.StreamID()), 10) +
		" flags=0x" + strconv.FormatUint(uint64(f.Flags()), 16)
}
