package main

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ozontech/h2duplex/utils/bytesize"
)

type ServeCommand struct {
	Addr     string            `default:"127.0.0.1:8080" help:"Listen address."`
	Size     bytesize.ByteSize `default:"1MiB" help:"Default GET response body size (?size= overrides)."`
	Sink     bool              `help:"Discard request bodies instead of echoing them."`
	Compress bool              `help:"Compress GET responses when the client accepts gzip or zstd."`
}

func (c *ServeCommand) Run(ctx context.Context, globals *Globals) error {
	log, err := globals.logger()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", c.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           h2c.NewHandler(c.handler(log), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() { srv.Close() })
	defer stop()

	log.Info("serving", zap.Stringer("addr", ln.Addr()))
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (c *ServeCommand) handler(log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			c.download(w, r)
			return
		}

		w.Header().Set("Trailer", "X-Length")
		w.WriteHeader(http.StatusOK)
		var dst io.Writer = w
		if c.Sink {
			dst = io.Discard
		}
		n, err := io.Copy(dst, r.Body)
		if err != nil {
			log.Debug("request body", zap.Error(err))
		}
		w.Header().Set("X-Length", strconv.FormatInt(n, 10))
	}
}

func (c *ServeCommand) download(w http.ResponseWriter, r *http.Request) {
	size := int64(c.Size)
	if s := r.URL.Query().Get("size"); s != "" {
		v, err := bytesize.Parse(s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		size = int64(v)
	}
	// воспроизводимое тело: одинаковый size даёт одинаковые байты
	body := io.LimitReader(rand.New(rand.NewSource(size)), size) //nolint:gosec

	var dst io.Writer = w
	encoding := ""
	if c.Compress {
		encoding = acceptedEncoding(r.Header.Get("Accept-Encoding"))
		switch encoding {
		case "zstd":
			enc, err := zstd.NewWriter(w)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			defer enc.Close()
			w.Header().Set("Content-Encoding", encoding)
			dst = enc
		case "gzip":
			enc := gzip.NewWriter(w)
			defer enc.Close()
			w.Header().Set("Content-Encoding", encoding)
			dst = enc
		}
	}
	if encoding == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.Copy(dst, body)
}

func acceptedEncoding(accept string) string {
	var gz bool
	for _, e := range strings.Split(accept, ",") {
		e, _, _ = strings.Cut(strings.TrimSpace(e), ";")
		switch e {
		case "zstd":
			return e
		case "gzip":
			gz = true
		}
	}
	if gz {
		return "gzip"
	}
	return ""
}
