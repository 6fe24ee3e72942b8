package types

import (
	"golang.org/x/net/http2/hpack"
)

type FlowControl interface {
	Take(stop <-chan struct{}, max int) (n int, ok bool) // Ждем окно на отправку и забираем до max байт. ok == false: стрим больше не может отправлять данные
	Add(n int64)                                         // Изменение размера окна на отправку, может быть отрицательным (SETTINGS_INITIAL_WINDOW_SIZE)
	Disable()                                            // Переводит flow control в невалидное состояние
}

type StreamStore interface {
	Set(uint32, Stream) // добавить стрим в хранилище
	Get(uint32) Stream  // получить стрим из хранилища
	Delete(uint32)      // удалить стрим из хранилища
	Each(func(Stream))  // итерируется по снимку стримов хранилища, fn может удалять стримы
	Len() int
}

// Stream is the receive side of one client stream as the frame processors
// see it. All methods are called from the receiving goroutine.
type Stream interface {
	ID() uint32
	FC() FlowControl

	// OnHeaders gets one complete decoded header block. fields is reused
	// after the call.
	OnHeaders(fields []hpack.HeaderField, endStream bool)
	// OnDataStart accounts a DATA frame of length bytes against the stream
	// receive window. false drops the frame.
	OnDataStart(length int) bool
	// OnData gets a fragment of DATA payload with padding stripped. b is
	// only valid during the call.
	OnData(b []byte)
	// OnDataEnd closes the frame; padding is the flow controlled part that
	// was not data.
	OnDataEnd(padding int, endStream bool)
	End(err error)
}

type PriorityWriter interface {
	SendPriority(frame []byte) error // управляющие фреймы соединения, пишутся вне очереди
}

type Releaser interface {
	Release()
}
