package frameheader

import (
	"encoding/binary"

	"golang.org/x/net/http2"
)

// Builders of small control frames. Each call returns a freshly allocated
// frame so it can be handed to the sender without further copying.

func WindowUpdate(streamID, increment uint32) []byte {
	b := make([]byte, Size+4)
	FrameHeader(b).Fill(4, http2.FrameWindowUpdate, 0, streamID)
	binary.BigEndian.PutUint32(b[Size:], increment&(1<<31-1))
	return b
}

func RSTStream(streamID uint32, code http2.ErrCode) []byte {
	b := make([]byte, Size+4)
	FrameHeader(b).Fill(4, http2.FrameRSTStream, 0, streamID)
	binary.BigEndian.PutUint32(b[Size:], uint32(code))
	return b
}

func SettingsAck() []byte {
	b := make([]byte, Size)
	FrameHeader(b).Fill(0, http2.FrameSettings, http2.FlagSettingsAck, 0)
	return b
}

func PingAck(data []byte) []byte {
	b := make([]byte, Size, Size+8)
	FrameHeader(b).Fill(8, http2.FramePing, http2.FlagPingAck, 0)
	return append(b, data...)
}

func GoAway(lastStreamID uint32, code http2.ErrCode, debug []byte) []byte {
	b := make([]byte, Size+8, Size+8+len(debug))
	FrameHeader(b).Fill(8+len(debug), http2.FrameGoAway, 0, 0)
	binary.BigEndian.PutUint32(b[Size:], lastStreamID&(1<<31-1))
	binary.BigEndian.PutUint32(b[Size+4:], uint32(code))
	return append(b, debug...)
}

func Settings(settings ...http2.Setting) []byte {
	b := make([]byte, Size+6*len(settings))
	FrameHeader(b).Fill(6*len(settings), http2.FrameSettings, 0, 0)
	for i, s := range settings {
		off := Size + 6*i
		binary.BigEndian.PutUint16(b[off:], uint16(s.ID))
		binary.BigEndian.PutUint32(b[off+2:], s.Val)
	}
	return b
}
