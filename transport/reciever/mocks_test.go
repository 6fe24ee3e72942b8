package reciever

import (
	"sync"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/ozontech/h2duplex/frameheader"
	"github.com/ozontech/h2duplex/transport/types"
)

type FrameTypeProcessorMock struct {
	ProcessFunc func(header frameheader.FrameHeader, payload []byte, incomplete bool) error

	mu    sync.Mutex
	calls []struct {
		Header     frameheader.FrameHeader
		Payload    []byte
		Incomplete bool
	}
}

func (m *FrameTypeProcessorMock) Process(header frameheader.FrameHeader, payload []byte, incomplete bool) error {
	m.mu.Lock()
	m.calls = append(m.calls, struct {
		Header     frameheader.FrameHeader
		Payload    []byte
		Incomplete bool
	}{append(frameheader.FrameHeader(nil), header...), append([]byte(nil), payload...), incomplete})
	m.mu.Unlock()
	if m.ProcessFunc == nil {
		return nil
	}
	return m.ProcessFunc(header, payload, incomplete)
}

func (m *FrameTypeProcessorMock) ProcessCalls() []struct {
	Header     frameheader.FrameHeader
	Payload    []byte
	Incomplete bool
} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(m.calls[:0:0], m.calls...)
}

type StreamMock struct {
	IDFunc          func() uint32
	FCFunc          func() types.FlowControl
	OnDataStartFunc func(length int) bool

	mu    sync.Mutex
	calls struct {
		OnHeaders []struct {
			Fields    []hpack.HeaderField
			EndStream bool
		}
		OnDataStart []int
		OnData      [][]byte
		OnDataEnd   []struct {
			Padding   int
			EndStream bool
		}
		End []error
	}
}

func (m *StreamMock) ID() uint32 {
	if m.IDFunc == nil {
		return 0
	}
	return m.IDFunc()
}

func (m *StreamMock) FC() types.FlowControl {
	return m.FCFunc()
}

func (m *StreamMock) OnHeaders(fields []hpack.HeaderField, endStream bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.OnHeaders = append(m.calls.OnHeaders, struct {
		Fields    []hpack.HeaderField
		EndStream bool
	}{append([]hpack.HeaderField(nil), fields...), endStream})
}

func (m *StreamMock) OnDataStart(length int) bool {
	m.mu.Lock()
	m.calls.OnDataStart = append(m.calls.OnDataStart, length)
	m.mu.Unlock()
	if m.OnDataStartFunc == nil {
		return true
	}
	return m.OnDataStartFunc(length)
}

func (m *StreamMock) OnData(b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.OnData = append(m.calls.OnData, append([]byte(nil), b...))
}

func (m *StreamMock) OnDataEnd(padding int, endStream bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.OnDataEnd = append(m.calls.OnDataEnd, struct {
		Padding   int
		EndStream bool
	}{padding, endStream})
}

func (m *StreamMock) End(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.End = append(m.calls.End, err)
}

func (m *StreamMock) OnHeadersCalls() []struct {
	Fields    []hpack.HeaderField
	EndStream bool
} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.OnHeaders
}

func (m *StreamMock) OnDataStartCalls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.OnDataStart
}

func (m *StreamMock) OnDataCalls() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.OnData
}

func (m *StreamMock) OnDataEndCalls() []struct {
	Padding   int
	EndStream bool
} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.OnDataEnd
}

func (m *StreamMock) EndCalls() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.End
}

type StreamStoreMock struct {
	GetFunc func(id uint32) types.Stream

	mu       sync.Mutex
	getCalls []uint32
}

func (m *StreamStoreMock) Set(uint32, types.Stream) { panic("unexpected call") }
func (m *StreamStoreMock) Delete(uint32)            { panic("unexpected call") }
func (m *StreamStoreMock) Each(func(types.Stream))  { panic("unexpected call") }
func (m *StreamStoreMock) Len() int                 { panic("unexpected call") }

func (m *StreamStoreMock) Get(id uint32) types.Stream {
	m.mu.Lock()
	m.getCalls = append(m.getCalls, id)
	m.mu.Unlock()
	return m.GetFunc(id)
}

func (m *StreamStoreMock) GetCalls() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls
}

// streamStoreOf returns a store holding a single stream.
func streamStoreOf(id uint32, s types.Stream) *StreamStoreMock {
	return &StreamStoreMock{GetFunc: func(v uint32) types.Stream {
		if v == id {
			return s
		}
		return nil
	}}
}

type FlowControlMock struct {
	mu       sync.Mutex
	addCalls []int64
}

func (m *FlowControlMock) Take(<-chan struct{}, int) (int, bool) { panic("unexpected call") }
func (m *FlowControlMock) Disable()                              { panic("unexpected call") }

func (m *FlowControlMock) Add(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls = append(m.addCalls, n)
}

func (m *FlowControlMock) AddCalls() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addCalls
}

type PriorityWriterMock struct {
	mu     sync.Mutex
	frames [][]byte
}

func (m *PriorityWriterMock) SendPriority(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, append([]byte(nil), frame...))
	return nil
}

func (m *PriorityWriterMock) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

type ConnHandlerMock struct {
	OnSettingsFunc func(settings []http2.Setting) error
	OnGoAwayFunc   func(err GoAwayError) error

	mu       sync.Mutex
	settings [][]http2.Setting
	goAways  []GoAwayError
}

func (m *ConnHandlerMock) OnSettings(settings []http2.Setting) error {
	m.mu.Lock()
	m.settings = append(m.settings, settings)
	m.mu.Unlock()
	if m.OnSettingsFunc == nil {
		return nil
	}
	return m.OnSettingsFunc(settings)
}

func (m *ConnHandlerMock) OnGoAway(err GoAwayError) error {
	m.mu.Lock()
	m.goAways = append(m.goAways, err)
	m.mu.Unlock()
	if m.OnGoAwayFunc == nil {
		return nil
	}
	return m.OnGoAwayFunc(err)
}

func (m *ConnHandlerMock) OnSettingsCalls() [][]http2.Setting {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

func (m *ConnHandlerMock) OnGoAwayCalls() []GoAwayError {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.goAways
}
