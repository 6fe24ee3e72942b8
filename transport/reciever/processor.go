package reciever

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/ozontech/h2duplex/consts"
	"github.com/ozontech/h2duplex/frameheader"
	"github.com/ozontech/h2duplex/transport/types"
)

type FrameTypeProcessor interface {
	Process(header frameheader.FrameHeader, payload []byte, incomplete bool) error
}

// ConnHandler receives the connection level frames that change the state of
// the connection itself.
type ConnHandler interface {
	OnSettings(settings []http2.Setting) error
	OnGoAway(err GoAwayError) error
}

type Config struct {
	MaxFrameSize      int    // announced SETTINGS_MAX_FRAME_SIZE
	ConnWindowSize    int    // connection receive window
	HeaderTableSize   uint32 // announced SETTINGS_HEADER_TABLE_SIZE
	MaxHeaderListSize uint32 // announced SETTINGS_MAX_HEADER_LIST_SIZE
}

type Processor struct {
	framer        *Framer
	subprocessors []FrameTypeProcessor
	maxFrameSize  int

	inFrame    bool
	contStream uint32 // поток, для которого ожидается CONTINUATION
}

func NewProcessor(subprocessors []FrameTypeProcessor, maxFrameSize int) *Processor {
	return &Processor{framer: new(Framer), subprocessors: subprocessors, maxFrameSize: maxFrameSize}
}

func NewDefaultProcessor(
	conf Config,
	streams types.StreamStore,
	fcConn types.FlowControl,
	pw types.PriorityWriter,
	conn ConnHandler,
) *Processor {
	headersFrameProcessor := newHeadersFrameProcessor(streams, conf.HeaderTableSize, conf.MaxHeaderListSize)
	return NewProcessor([]FrameTypeProcessor{
		http2.FrameData:         newDataFrameProcessor(pw, streams, conf.ConnWindowSize),
		http2.FrameHeaders:      headersFrameProcessor,
		http2.FrameRSTStream:    newRSTStreamFrameProcessor(streams),
		http2.FrameSettings:     newSettingsFrameProcessor(pw, conn),
		http2.FramePushPromise:  pushPromiseFrameProcessor{},
		http2.FramePing:         newPingFrameProcessor(pw),
		http2.FrameGoAway:       newGoAwayFrameProcessor(conn),
		http2.FrameWindowUpdate: newWindowUpdateFrameProcessor(streams, fcConn),
		http2.FrameContinuation: headersFrameProcessor,
	}, conf.MaxFrameSize)
}

func (p *Processor) Run(ch <-chan []byte) error {
	for b := range ch {
		err := p.process(b)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) process(buf []byte) error {
	var (
		err    error
		b      []byte
		status Status
		header frameheader.FrameHeader
	)
	p.framer.Fill(buf)
	for {
		b, status = p.framer.Next()
		if status == StatusHeaderIncomplete {
			return nil
		}

		header = p.framer.Header()
		if !p.inFrame {
			if err = p.checkFrame(header); err != nil {
				return err
			}
			p.inFrame = true
		}
		incomplete := status == StatusPayloadIncomplete
		if !incomplete {
			p.inFrame = false
		}

		// неизвестные типы фреймов игнорируются
		if t := int(header.Type()); t < len(p.subprocessors) {
			if sp := p.subprocessors[t]; sp != nil {
				err = sp.Process(header, b, incomplete)
				if err != nil {
					return err
				}
			}
		}

		if status == StatusFrameDone {
			continue
		}

		return nil
	}
}

// checkFrame validates a frame header before any of its payload is processed.
func (p *Processor) checkFrame(h frameheader.FrameHeader) error {
	if h.Length() > p.maxFrameSize {
		return ConnError{http2.ErrCodeFrameSize, fmt.Errorf("frame too large: %s", h)}
	}

	t := h.Type()
	if p.contStream != 0 {
		if t != http2.FrameContinuation || h.StreamID() != p.contStream {
			return ConnError{http2.ErrCodeProtocol, fmt.Errorf("expected CONTINUATION for stream %d, got %s", p.contStream, h)}
		}
	} else if t == http2.FrameContinuation {
		return ConnError{http2.ErrCodeProtocol, fmt.Errorf("unexpected %s", h)}
	}

	switch t {
	case http2.FrameHeaders:
		if !h.Flags().Has(http2.FlagHeadersEndHeaders) {
			p.contStream = h.StreamID()
		}
	case http2.FrameContinuation:
		if h.Flags().Has(http2.FlagContinuationEndHeaders) {
			p.contStream = 0
		}
	}

	switch t {
	case http2.FrameData, http2.FrameHeaders, http2.FrameRSTStream,
		http2.FrameContinuation, http2.FramePushPromise, http2.FramePriority:
		if h.StreamID() == 0 {
			return ConnError{http2.ErrCodeProtocol, fmt.Errorf("zero stream id: %s", h)}
		}
	case http2.FrameSettings, http2.FramePing, http2.FrameGoAway:
		if h.StreamID() != 0 {
			return ConnError{http2.ErrCodeProtocol, fmt.Errorf("non zero stream id: %s", h)}
		}
	}

	var sizeOK bool
	switch t {
	case http2.FrameRSTStream, http2.FrameWindowUpdate:
		sizeOK = h.Length() == 4
	case http2.FramePing:
		sizeOK = h.Length() == 8
	case http2.FrameGoAway:
		sizeOK = h.Length() >= 8
	case http2.FramePriority:
		sizeOK = h.Length() == 5
	case http2.FrameSettings:
		if h.Flags().Has(http2.FlagSettingsAck) {
			sizeOK = h.Length() == 0
		} else {
			sizeOK = h.Length()%6 == 0
		}
	default:
		sizeOK = true
	}
	if !sizeOK {
		return ConnError{http2.ErrCodeFrameSize, fmt.Errorf("bad frame size: %s", h)}
	}
	return nil
}

var errPadding = errors.New("pad length exceeds frame payload")

// payloadCursor strips the pad length octet, the priority fields and the
// trailing padding from DATA and HEADERS payload fragments.
type payloadCursor struct {
	padLen int // -1 пока не прочитан
	prefix int
	left   int
}

func (c *payloadCursor) start(h frameheader.FrameHeader) error {
	c.left = h.Length()
	c.prefix = h.PrefixLen()
	c.padLen = 0
	minLen := c.prefix
	if h.Padded() {
		c.padLen = -1
		minLen++
	}
	if c.left < minLen {
		return ConnError{http2.ErrCodeProtocol, errPadding}
	}
	return nil
}

func (c *payloadCursor) next(b []byte) ([]byte, error) {
	if c.padLen < 0 {
		if len(b) == 0 {
			return nil, nil
		}
		c.padLen = int(b[0])
		b = b[1:]
		c.left--
		if c.padLen > c.left-c.prefix {
			return nil, ConnError{http2.ErrCodeProtocol, errPadding}
		}
	}

	skip := min(c.prefix, len(b))
	b = b[skip:]
	c.prefix -= skip
	c.left -= skip

	n := min(len(b), max(c.left-c.padLen, 0))
	c.left -= len(b)
	return b[:n], nil
}

type pingFrameProcessor struct {
	pw   types.PriorityWriter
	data []byte
}

func newPingFrameProcessor(pw types.PriorityWriter) *pingFrameProcessor {
	return &pingFrameProcessor{pw, make([]byte, 0, 8)}
}

func (p *pingFrameProcessor) Process(header frameheader.FrameHeader, payload []byte, incomplete bool) error {
	p.data = append(p.data, payload...)
	if incomplete {
		return nil
	}
	defer func() { p.data = p.data[:0] }()

	if header.Flags().Has(http2.FlagPingAck) {
		return nil
	}
	return p.pw.SendPriority(frameheader.PingAck(p.data))
}

type dataFrameProcessor struct {
	pw      types.PriorityWriter
	streams types.StreamStore

	stream  types.Stream
	cursor  payloadCursor
	dataLen int
	inFrame bool

	connAvail       int
	windowUpdateAcc int
	windowUpdateMin int
}

func newDataFrameProcessor(pw types.PriorityWriter, streams types.StreamStore, connWindow int) *dataFrameProcessor {
	return &dataFrameProcessor{
		pw:              pw,
		streams:         streams,
		connAvail:       connWindow,
		windowUpdateMin: connWindow / 4,
	}
}

func (p *dataFrameProcessor) Process(header frameheader.FrameHeader, payload []byte, incomplete bool) error {
	if !p.inFrame {
		if err := p.start(header); err != nil {
			return err
		}
	}

	data, err := p.cursor.next(payload)
	if err != nil {
		return err
	}
	p.dataLen += len(data)
	if p.stream != nil && len(data) != 0 {
		p.stream.OnData(data)
	}

	if incomplete {
		return nil
	}
	return p.end(header)
}

func (p *dataFrameProcessor) start(header frameheader.FrameHeader) error {
	length := header.Length()
	p.connAvail -= length
	if p.connAvail < 0 {
		return ConnError{http2.ErrCodeFlowControl, fmt.Errorf("connection receive window exceeded by %s", header)}
	}
	if err := p.cursor.start(header); err != nil {
		return err
	}

	p.inFrame = true
	p.dataLen = 0
	p.stream = p.streams.Get(header.StreamID())
	if p.stream != nil && !p.stream.OnDataStart(length) {
		p.stream = nil
	}
	return nil
}

func (p *dataFrameProcessor) end(header frameheader.FrameHeader) error {
	p.inFrame = false
	length := header.Length()
	if p.stream != nil {
		p.stream.OnDataEnd(length-p.dataLen, header.Flags().Has(http2.FlagDataEndStream))
		p.stream = nil
	}

	// окно соединения возвращаем сразу, backpressure держит окно стрима
	p.windowUpdateAcc += length
	if p.windowUpdateAcc > 0 && p.windowUpdateAcc >= p.windowUpdateMin {
		err := p.pw.SendPriority(frameheader.WindowUpdate(0, uint32(p.windowUpdateAcc)))
		if err != nil {
			return err
		}
		p.connAvail += p.windowUpdateAcc
		p.windowUpdateAcc = 0
	}
	return nil
}

type headersFrameProcessor struct {
	streams      types.StreamStore
	hpackDecoder *hpack.Decoder
	maxListSize  uint32

	cursor    payloadCursor
	inFrame   bool
	streamID  uint32
	endStream bool
	fields    []hpack.HeaderField
	listSize  uint32
	tooLarge  bool
}

func newHeadersFrameProcessor(streams types.StreamStore, tableSize, maxListSize uint32) *headersFrameProcessor {
	p := &headersFrameProcessor{streams: streams, maxListSize: maxListSize}
	p.hpackDecoder = hpack.NewDecoder(tableSize, p.OnHeader)
	p.hpackDecoder.SetMaxStringLength(int(min(maxListSize, consts.MaxWindowSize)))
	return p
}

func (p *headersFrameProcessor) OnHeader(f hpack.HeaderField) {
	if p.tooLarge {
		return
	}
	p.listSize += f.Size()
	if p.listSize > p.maxListSize {
		p.tooLarge = true
		p.fields = p.fields[:0]
		return
	}
	p.fields = append(p.fields, f)
}

func (p *headersFrameProcessor) Process(header frameheader.FrameHeader, payload []byte, incomplete bool) error {
	if !p.inFrame {
		p.inFrame = true
		if header.Type() == http2.FrameHeaders {
			if err := p.cursor.start(header); err != nil {
				return err
			}
			p.streamID = header.StreamID()
			p.endStream = header.Flags().Has(http2.FlagHeadersEndStream)
		} else {
			p.cursor = payloadCursor{left: header.Length()}
		}
	}

	block, err := p.cursor.next(payload)
	if err != nil {
		return err
	}
	// блок декодируется всегда, даже для закрытых стримов: иначе разъедется динамическая таблица
	if _, err = p.hpackDecoder.Write(block); err != nil {
		return ConnError{http2.ErrCodeCompression, fmt.Errorf("hpack decoding: %w", err)}
	}

	if incomplete {
		return nil
	}
	p.inFrame = false
	if !header.Flags().Has(http2.FlagHeadersEndHeaders) {
		return nil
	}

	if err = p.hpackDecoder.Close(); err != nil {
		return ConnError{http2.ErrCodeCompression, fmt.Errorf("hpack decoding: %w", err)}
	}
	defer p.reset()

	stream := p.streams.Get(p.streamID)
	if stream == nil {
		return nil
	}
	if p.tooLarge {
		stream.End(StreamError{p.streamID, http2.ErrCodeProtocol, errors.New("header list too large")})
		return nil
	}
	stream.OnHeaders(p.fields, p.endStream)
	return nil
}

func (p *headersFrameProcessor) reset() {
	p.fields = p.fields[:0]
	p.listSize = 0
	p.tooLarge = false
	p.streamID = 0
	p.endStream = false
}

type rstStreamFrameProcessor struct {
	streams types.StreamStore
	errCode uint32
}

func newRSTStreamFrameProcessor(streams types.StreamStore) *rstStreamFrameProcessor {
	return &rstStreamFrameProcessor{streams, 0}
}

func (p *rstStreamFrameProcessor) Process(header frameheader.FrameHeader, payload []byte, incomplete bool) error {
	for _, b := range payload {
		p.errCode = (p.errCode << 8) | uint32(b)
	}
	if incomplete {
		return nil
	}

	errCode := http2.ErrCode(p.errCode)
	p.errCode = 0

	stream := p.streams.Get(header.StreamID())
	if stream != nil {
		stream.End(RSTStreamError{errCode})
	}
	return nil
}

type settingsFrameProcessor struct {
	pw      types.PriorityWriter
	conn    ConnHandler
	payload []byte
}

func newSettingsFrameProcessor(pw types.PriorityWriter, conn ConnHandler) *settingsFrameProcessor {
	return &settingsFrameProcessor{pw: pw, conn: conn}
}

func (p *settingsFrameProcessor) Process(header frameheader.FrameHeader, payload []byte, incomplete bool) error {
	p.payload = append(p.payload, payload...)
	if incomplete {
		return nil
	}
	defer func() { p.payload = p.payload[:0] }()

	if header.Flags().Has(http2.FlagSettingsAck) {
		return nil
	}
	settings, err := ParseSettings(p.payload)
	if err != nil {
		return err
	}
	if err = p.conn.OnSettings(settings); err != nil {
		return err
	}
	return p.pw.SendPriority(frameheader.SettingsAck())
}

type windowUpdateFrameProcessor struct {
	fcConn    types.FlowControl
	streams   types.StreamStore
	increment uint32
}

func newWindowUpdateFrameProcessor(
	streams types.StreamStore, fcConn types.FlowControl,
) *windowUpdateFrameProcessor {
	return &windowUpdateFrameProcessor{fcConn, streams, 0}
}

func (p *windowUpdateFrameProcessor) Process(header frameheader.FrameHeader, payload []byte, incomplete bool) error {
	for _, b := range payload {
		p.increment = (p.increment << 8) | uint32(b)
	}
	if incomplete {
		return nil
	}
	increment := p.increment & (1<<31 - 1)
	p.increment = 0

	streamID := header.StreamID()
	if streamID == 0 {
		if increment == 0 {
			return ConnError{http2.ErrCodeProtocol, errors.New("zero connection window increment")}
		}
		p.fcConn.Add(int64(increment))
		return nil
	}

	stream := p.streams.Get(streamID)
	if stream == nil {
		return nil
	}
	if increment == 0 {
		stream.End(StreamError{streamID, http2.ErrCodeProtocol, errors.New("zero window increment")})
		return nil
	}
	stream.FC().Add(int64(increment))
	return nil
}

type goAwayFrameProcessor struct {
	conn    ConnHandler
	payload []byte
}

func newGoAwayFrameProcessor(conn ConnHandler) *goAwayFrameProcessor {
	return &goAwayFrameProcessor{conn: conn}
}

func (p *goAwayFrameProcessor) Process(_ frameheader.FrameHeader, payload []byte, incomplete bool) error {
	p.payload = append(p.payload, payload...)
	if incomplete {
		return nil
	}
	defer func() { p.payload = p.payload[:0] }()

	return p.conn.OnGoAway(GoAwayError{
		LastStreamID: binary.BigEndian.Uint32(p.payload) & (1<<31 - 1),
		Code:         http2.ErrCode(binary.BigEndian.Uint32(p.payload[4:])),
		DebugData:    append([]byte(nil), p.payload[8:]...),
	})
}

// pushPromiseFrameProcessor rejects PUSH_PROMISE: push is disabled in the
// client preface.
type pushPromiseFrameProcessor struct{}

func (pushPromiseFrameProcessor) Process(frameheader.FrameHeader, []byte, bool) error {
	return ConnError{http2.ErrCodeProtocol, errors.New("push promise with push disabled")}
}
