package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	mangokong "github.com/alecthomas/mango-kong"
	"go.uber.org/zap"

	"github.com/ozontech/h2duplex/client"
)

type Globals struct {
	Config  string `help:"Client config file (YAML)." type:"existingfile" placeholder:"h2duplex.yaml"`
	Verbose bool   `short:"v" help:"Verbose output."`
}

func (g *Globals) logger() (*zap.Logger, error) {
	if !g.Verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

func (g *Globals) clientConfig() (client.Config, error) {
	if g.Config == "" {
		return client.DefaultConfig(), nil
	}
	f, err := os.Open(g.Config)
	if err != nil {
		return client.Config{}, err
	}
	defer f.Close()
	conf, err := client.LoadConfig(f)
	if err != nil {
		return client.Config{}, fmt.Errorf("config %s: %w", g.Config, err)
	}
	return conf, nil
}

func (g *Globals) newClient(log *zap.Logger, opts ...client.Option) (*client.Client, error) {
	conf, err := g.clientConfig()
	if err != nil {
		return nil, err
	}
	return client.New(conf, append([]client.Option{client.WithLogger(log)}, opts...)...)
}

var CLI struct {
	Globals

	Get   GetCommand        `cmd:"" help:"Download a response body."`
	Put   PutCommand        `cmd:"" help:"Upload a file as a request body."`
	Bench BenchCommand      `cmd:"" help:"Run concurrent exchanges and report results."`
	Serve ServeCommand      `cmd:"" help:"Serve h2c echo and download endpoints."`
	Man   mangokong.ManFlag `help:"Write man page." hidden:""`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(
		&CLI,
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.Bind(&CLI.Globals),
		kong.Bind(DurationLimit{}),
		kong.Groups(map[string]string{
			"rps": `Rate flags:`,
		}),
		kong.ConfigureHelp(kong.HelpOptions{
			Tree:    true,
			Compact: true,
		}),
		kong.Description(`duplex HTTP/2 client

h2duplex streams request and response bodies over prior-knowledge HTTP/2 connections with bounded buffering in both directions.
		`),
	)
	err := kongCtx.Run()
	kongCtx.FatalIfErrorf(err)
}
