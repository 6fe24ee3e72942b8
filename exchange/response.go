package exchange

import (
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/http2/hpack"

	"github.com/ozontech/h2duplex/reactive"
	"github.com/ozontech/h2duplex/utils/lru"
)

// canonicalKeys caches canonical forms of lowercase HTTP/2 field names.
var canonicalKeys = lru.New(1024)

// Response is the head of an HTTP/2 response. Trailer is filled once the
// body has been received.
type Response struct {
	Status  int
	Header  http.Header
	Trailer http.Header
}

// ResponseHandler is the caller side of an exchange. OnHeaders and OnStream
// are called once each, from the transport receive goroutine, before any
// body byte is delivered. OnError is called at most once, when the exchange
// fails after the stream was opened or could not be opened at all.
//
// Calls never overlap and come in the order OnHeaders, OnStream, OnError. A
// failure that arrives while OnHeaders runs skips OnStream.
type ResponseHandler interface {
	OnHeaders(resp *Response)
	// OnStream hands over the response body. It must be subscribed to for
	// the receive window to be replenished.
	OnStream(body reactive.Publisher)
	OnError(err error)
}

func appendFields(h http.Header, fields []hpack.HeaderField) http.Header {
	if h == nil {
		h = make(http.Header, len(fields))
	}
	for _, f := range fields {
		if strings.HasPrefix(f.Name, ":") {
			continue
		}
		k := canonicalKeys.GetOrAdd(f.Name, http.CanonicalHeaderKey)
		h[k] = append(h[k], f.Value)
	}
	return h
}

func statusOf(fields []hpack.HeaderField) int {
	for _, f := range fields {
		if f.Name == ":status" {
			status, _ := strconv.Atoi(f.Value)
			return status
		}
	}
	return 0
}
