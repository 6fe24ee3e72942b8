package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/ozontech/h2duplex/reactive"
	"github.com/ozontech/h2duplex/utils/bytesize"
)

type PutCommand struct {
	requestFlags

	File   *os.File          `short:"f" required:"" help:"File to upload (- for stdin)."`
	Method string            `default:"PUT" enum:"PUT,POST,PATCH" help:"Request method: ${enum}."`
	Chunk  bytesize.ByteSize `default:"64KiB" help:"Read chunk size."`
	Out    string            `short:"o" default:"-" help:"Response body output (default is stdout)." type:"path"`
	Digest bool              `help:"Print the BLAKE3 digest of the uploaded body to stderr."`
}

func (c *PutCommand) Run(ctx context.Context, g *Globals) error {
	defer c.File.Close()

	log, err := g.logger()
	if err != nil {
		return err
	}
	cl, err := g.newClient(log)
	if err != nil {
		return err
	}
	defer cl.Close()

	req, err := c.request(c.Method)
	if err != nil {
		return err
	}
	if st, err := c.File.Stat(); err == nil && st.Mode().IsRegular() {
		req.ContentLength = st.Size()
	}

	out := os.Stdout
	if c.Out != "-" {
		out, err = os.Create(c.Out)
		if err != nil {
			return fmt.Errorf("output file creation: %w", err)
		}
		defer out.Close()
	}

	hasher := blake3.New()
	counter := &countWriter{}
	body := reactive.FromReader(io.TeeReader(c.File, io.MultiWriter(hasher, counter)), c.Chunk.Int())
	res, err := transfer(ctx, cl, req, body, out, false)
	if err != nil {
		return err
	}
	if res.resp.Status >= http.StatusBadRequest {
		return fmt.Errorf("server responded %d", res.resp.Status)
	}
	log.Info("uploaded", zap.Int("status", res.resp.Status), zap.String("size", humanize.IBytes(uint64(counter.n))))
	if c.Digest {
		fmt.Fprintf(os.Stderr, "blake3 %s\n", hex.EncodeToString(hasher.Sum(nil)))
	}
	return nil
}

type countWriter struct{ n int64 }

func (w *countWriter) Write(b []byte) (int, error) {
	w.n += int64(len(b))
	return len(b), nil
}
