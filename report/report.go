// Package report collects per-exchange outcomes.
package report

import "golang.org/x/net/http2"

type Acquirer interface {
	Acquire(tag string) State
}

type Reporter interface {
	Acquirer
	Run() error
	Close() error
}

// State accumulates one exchange. Methods are called from transport
// goroutines but never concurrently for one state. End hands the state back
// to its reporter; it must not be used afterwards.
type State interface {
	OnHeader(name, value string)  // заголовки ответа по мере получения
	Sent(n int)                   // отправлено n байт тела запроса
	Received(n int)               // получено n байт тела ответа
	IoError(err error)            // обмен завершился ошибкой
	RSTStream(code http2.ErrCode) // получен или отправлен RST_STREAM
	GoAway(code http2.ErrCode)    // стрим не обработан из-за GOAWAY
	End()
}
