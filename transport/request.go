package transport

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	hpackwrapper "github.com/ozontech/h2duplex/utils/hpack_wrapper"
)

// Request is what goes into the HEADERS frame that opens a stream.
type Request struct {
	Method    string
	Scheme    string
	Authority string
	Path      string
	Header    http.Header
	// ContentLength is sent as content-length when not negative. Zero is
	// only sent for methods that usually carry a body.
	ContentLength int64
	// EndStream closes the request in the HEADERS frame: there is no body.
	EndStream bool
}

// connection-specific header fields are forbidden in HTTP/2
var skipHeaders = map[string]bool{
	"connection":        true,
	"proxy-connection":  true,
	"keep-alive":        true,
	"transfer-encoding": true,
	"upgrade":           true,
	"host":              true,
	"content-length":    true,
}

func (r *Request) validate() error {
	if r.Method != "" && !validMethod(r.Method) {
		return fmt.Errorf("invalid method %q", r.Method)
	}
	if r.Authority == "" && r.Header.Get("Host") == "" {
		return fmt.Errorf("missing authority")
	}
	for k, vv := range r.Header {
		if !httpguts.ValidHeaderFieldName(k) {
			return fmt.Errorf("invalid header field name %q", k)
		}
		for _, v := range vv {
			if !httpguts.ValidHeaderFieldValue(v) {
				return fmt.Errorf("invalid header field value for %q", k)
			}
		}
	}
	return nil
}

func validMethod(m string) bool {
	return strings.IndexFunc(m, func(r rune) bool { return !httpguts.IsTokenRune(r) }) == -1
}

// writeHeaders encodes the request header block. Pseudo headers go first.
func (r *Request) writeHeaders(enc *hpackwrapper.Wrapper) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	scheme := r.Scheme
	if scheme == "" {
		scheme = "http"
	}
	authority := r.Authority
	if authority == "" {
		authority = r.Header.Get("Host")
	}
	path := r.Path
	if path == "" {
		path = "/"
	}

	enc.WriteField(":method", method)
	enc.WriteField(":scheme", scheme)
	enc.WriteField(":authority", authority)
	enc.WriteField(":path", path)

	for _, k := range slices.Sorted(maps.Keys(r.Header)) {
		name := strings.ToLower(k)
		if skipHeaders[name] {
			continue
		}
		for _, v := range r.Header[k] {
			if name == "te" && v != "trailers" {
				continue
			}
			enc.WriteField(name, v)
		}
	}

	if r.sendContentLength(method) {
		enc.WriteField("content-length", strconv.FormatInt(r.ContentLength, 10))
	}
}

func (r *Request) sendContentLength(method string) bool {
	switch {
	case r.ContentLength > 0:
		return true
	case r.ContentLength < 0:
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}
