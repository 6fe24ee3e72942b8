package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/ozontech/h2duplex/client"
	"github.com/ozontech/h2duplex/exchange"
	"github.com/ozontech/h2duplex/reactive"
)

const readAhead = 8

// download hands the response body to a reader on the caller goroutine.
type download struct {
	heads chan *exchange.Response
	body  *reactive.SubscriberReader
	err   chan error
}

func newDownload() *download {
	return &download{
		heads: make(chan *exchange.Response, 1),
		body:  reactive.NewSubscriberReader(readAhead),
		err:   make(chan error, 1),
	}
}

func (d *download) OnHeaders(resp *exchange.Response) { d.heads <- resp }
func (d *download) OnStream(body reactive.Publisher)  { body.Subscribe(d.body) }
func (d *download) OnError(err error)                 { d.err <- err }

type transferResult struct {
	resp    *exchange.Response
	written int64
	digest  []byte
}

// transfer runs one exchange and copies the response body to w, decoding it
// if decompress is set. digest is the BLAKE3 sum of what was written.
func transfer(
	ctx context.Context,
	c *client.Client,
	req *client.Request,
	body reactive.Publisher,
	w io.Writer,
	decompress bool,
) (transferResult, error) {
	d := newDownload()
	f := c.Submit(ctx, req, body, d)

	var res transferResult
	select {
	case res.resp = <-d.heads:
	case err := <-d.err:
		return res, err
	case <-ctx.Done():
		return res, ctx.Err()
	}
	defer d.body.Close()

	r, err := decoder(d.body, res.resp.Header.Get("Content-Encoding"), decompress)
	if err != nil {
		return res, err
	}
	defer r.Close()

	hasher := blake3.New()
	res.written, err = io.Copy(io.MultiWriter(w, hasher), r)
	if err != nil {
		return res, fmt.Errorf("reading response body: %w", err)
	}
	res.digest = hasher.Sum(nil)

	if _, err := f.Await(ctx); err != nil {
		return res, err
	}
	return res, nil
}

func decoder(r io.Reader, encoding string, decompress bool) (io.ReadCloser, error) {
	if !decompress {
		return io.NopCloser(r), nil
	}
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return io.NopCloser(r), nil
	case "gzip":
		return gzip.NewReader(r)
	case "zstd":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}
