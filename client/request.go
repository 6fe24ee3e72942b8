package client

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/ozontech/h2duplex/transport"
)

type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	// ContentLength is sent when positive.
	ContentLength int64
	// Tag groups exchanges in reports.
	Tag string
}

func NewRequest(method, rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}
	return &Request{Method: method, URL: u, Header: make(http.Header)}, nil
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// dialAddr is host:port of the server.
func (r *Request) dialAddr() (string, error) {
	if r.URL == nil || r.URL.Host == "" {
		return "", errors.New("request url has no host")
	}
	port := r.URL.Port()
	if port == "" {
		var ok bool
		if port, ok = defaultPorts[r.URL.Scheme]; !ok {
			return "", fmt.Errorf("unsupported scheme %q", r.URL.Scheme)
		}
	}
	return net.JoinHostPort(r.URL.Hostname(), port), nil
}

func (r *Request) transport(userAgent string, hasBody bool) *transport.Request {
	header := r.Header
	if userAgent != "" && header.Get("User-Agent") == "" {
		header = header.Clone()
		if header == nil {
			header = make(http.Header, 1)
		}
		header.Set("User-Agent", userAgent)
	}

	tr := &transport.Request{
		Method:        r.Method,
		Scheme:        r.URL.Scheme,
		Authority:     r.URL.Host,
		Path:          r.URL.RequestURI(),
		Header:        header,
		ContentLength: -1,
		EndStream:     !hasBody,
	}
	switch {
	case !hasBody:
		tr.ContentLength = 0
	case r.ContentLength > 0:
		tr.ContentLength = r.ContentLength
	}
	return tr
}
