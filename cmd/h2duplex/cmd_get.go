package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/ozontech/h2duplex/client"
)

type requestFlags struct {
	URL    string   `arg:"" help:"Request URL (http://host:port/path)."`
	Header []string `short:"H" help:"Request header (Name: value)." placeholder:"NAME:VALUE"`
}

func (f requestFlags) request(method string) (*client.Request, error) {
	req, err := client.NewRequest(method, f.URL)
	if err != nil {
		return nil, err
	}
	for _, h := range f.Header {
		k, v, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header %q", h)
		}
		req.Header.Add(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return req, nil
}

type GetCommand struct {
	requestFlags

	Out        string `short:"o" default:"-" help:"Output file (default is stdout)." type:"path"`
	Decompress bool   `help:"Ask for gzip or zstd and decode the response body."`
	Digest     bool   `help:"Print the BLAKE3 digest of the (decoded) body to stderr."`
}

func (c *GetCommand) Run(ctx context.Context, g *Globals) error {
	log, err := g.logger()
	if err != nil {
		return err
	}
	cl, err := g.newClient(log)
	if err != nil {
		return err
	}
	defer cl.Close()

	req, err := c.request(http.MethodGet)
	if err != nil {
		return err
	}
	if c.Decompress && req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "zstd, gzip")
	}

	out := os.Stdout
	if c.Out != "-" {
		out, err = os.Create(c.Out)
		if err != nil {
			return fmt.Errorf("output file creation: %w", err)
		}
		defer out.Close()
	}

	res, err := transfer(ctx, cl, req, nil, out, c.Decompress)
	if err != nil {
		return err
	}
	if res.resp.Status >= http.StatusBadRequest {
		return fmt.Errorf("server responded %d", res.resp.Status)
	}
	log.Info("downloaded", zap.Int("status", res.resp.Status), zap.String("size", humanize.IBytes(uint64(res.written))))
	if c.Digest {
		fmt.Fprintf(os.Stderr, "blake3 %s\n", hex.EncodeToString(res.digest))
	}
	return nil
}
