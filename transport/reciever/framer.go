package reciever

import "github.com/ozontech/h2duplex/frameheader"

type Status int

const (
	StatusFrameDone         Status = iota // payload ends inside the buffer
	StatusFrameDoneBufEmpty               // payload ends with the buffer
	StatusHeaderIncomplete                // buffer ended inside a frame header
	StatusPayloadIncomplete               // buffer ended inside a payload
)

// Framer splits read buffers into frame payload pieces. A frame header may
// be split across reads; payloads are returned as they arrive, without
// copying.
type Framer struct {
	hdr    [frameheader.Size]byte
	hdrLen int
	left   int
	buf    []byte
}

// Header is the header of the frame the last payload piece belongs to.
func (f *Framer) Header() frameheader.FrameHeader {
	return f.hdr[:]
}

func (f *Framer) Fill(b []byte) {
	f.buf = b
}

func (f *Framer) Next() ([]byte, Status) {
	if f.hdrLen < frameheader.Size {
		n := copy(f.hdr[f.hdrLen:], f.buf)
		f.hdrLen += n
		f.buf = f.buf[n:]
		if f.hdrLen < frameheader.Size {
			return nil, StatusHeaderIncomplete
		}
		f.left = f.Header().Length()
	}

	switch {
	case len(f.buf) > f.left:
		payload := f.buf[:f.left]
		f.buf = f.buf[f.left:]
		f.hdrLen = 0
		return payload, StatusFrameDone
	case len(f.buf) == f.left:
		f.hdrLen = 0
		return f.buf, StatusFrameDoneBufEmpty
	}
	f.left -= len(f.buf)
	return f.buf, StatusPayloadIncomplete
}
