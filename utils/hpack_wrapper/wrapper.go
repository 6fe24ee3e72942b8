package hpackwrapper

import (
	"bytes"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/ozontech/h2duplex/frameheader"
)

// Wrapper encodes one header block at a time and frames it as HEADERS
// followed by CONTINUATION frames. It is not safe for concurrent use: the
// encoder's dynamic table must see blocks in the order they hit the wire.
type Wrapper struct {
	block bytes.Buffer
	enc   *hpack.Encoder
}

func NewWrapper(opts ...Opt) *Wrapper {
	wrapper := &Wrapper{}
	wrapper.enc = hpack.NewEncoder(&wrapper.block)
	for _, o := range opts {
		o.apply(wrapper)
	}

	return wrapper
}

func (ww *Wrapper) WriteField(k, v string) {
	//nolint:errcheck // всегда пишем в буфер, это безопасно
	ww.enc.WriteField(hpack.HeaderField{
		Name:  k,
		Value: v,
	})
}

// SetMaxDynamicTableSizeLimit applies the peer's SETTINGS_HEADER_TABLE_SIZE.
func (ww *Wrapper) SetMaxDynamicTableSizeLimit(v uint32) {
	ww.enc.SetMaxDynamicTableSizeLimit(v)
}

// BlockLen returns the size of the header block encoded so far.
func (ww *Wrapper) BlockLen() int { return ww.block.Len() }

// AppendFrames appends the pending header block to dst as a HEADERS frame and
// as many CONTINUATION frames as maxFrameSize requires, then resets the block.
func (ww *Wrapper) AppendFrames(dst []byte, streamID uint32, endStream bool, maxFrameSize int) []byte {
	block := ww.block.Bytes()
	defer ww.block.Reset()

	t := http2.FrameHeaders
	var flags http2.Flags
	if endStream {
		flags |= http2.FlagHeadersEndStream
	}
	for first := true; first || len(block) > 0; first = false {
		n := min(len(block), maxFrameSize)
		f := flags
		if n == len(block) {
			f |= http2.FlagHeadersEndHeaders
		}

		off := len(dst)
		dst = append(dst, make([]byte, frameheader.Size)...)
		frameheader.FrameHeader(dst[off:]).Fill(n, t, f, streamID)
		dst = append(dst, block[:n]...)

		block = block[n:]
		t, flags = http2.FrameContinuation, 0
	}
	return dst
}

type Opt interface {
	apply(*Wrapper)
}

type WithMaxDynamicTableSize uint32

func (s WithMaxDynamicTableSize) apply(w *Wrapper) {
	w.enc.SetMaxDynamicTableSize(uint32(s))
}
