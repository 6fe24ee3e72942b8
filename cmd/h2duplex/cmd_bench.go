package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ozontech/h2duplex/client"
	"github.com/ozontech/h2duplex/report"
	"github.com/ozontech/h2duplex/report/multi"
	"github.com/ozontech/h2duplex/report/noop"
	phoutReporter "github.com/ozontech/h2duplex/report/phout"
	supersimpleReporter "github.com/ozontech/h2duplex/report/supersimple"
	"github.com/ozontech/h2duplex/scheduler"
	"github.com/ozontech/h2duplex/utils/bytesize"
)

type RPSConst struct {
	Freq     uint64        `arg:"" required:"" help:"Value req/s."`
	Duration time.Duration `help:"Limit duration (10s, 2h...)."`
}

func (r RPSConst) AfterApply(kongCtx *kong.Context) error {
	sched, err := scheduler.NewConstant(r.Freq)
	if err != nil {
		return err
	}
	kongCtx.BindTo(sched, (*scheduler.Scheduler)(nil))
	kongCtx.Bind(DurationLimit{r.Duration})
	return nil
}

type RPSLine struct {
	From     float64       `arg:"" required:"" help:"Starting req/s."`
	To       float64       `arg:"" required:"" help:"Ending req/s."`
	Duration time.Duration `arg:"" required:"" help:"Duration (10s, 2h...)."`
}

func (r RPSLine) AfterApply(kongCtx *kong.Context) error {
	sched, err := scheduler.NewLine(r.From, r.To, r.Duration)
	if err != nil {
		return err
	}
	kongCtx.BindTo(sched, (*scheduler.Scheduler)(nil))
	kongCtx.Bind(DurationLimit{r.Duration})
	return nil
}

type RPSUnlimited struct {
	Duration time.Duration `help:"Limit duration (10s, 2h...)."`
	Count    uint64        `help:"Limit exchanges count."`
}

func (r RPSUnlimited) AfterApply(kongCtx *kong.Context) error {
	var sched scheduler.Scheduler = scheduler.Unlimited{}
	if r.Count != 0 {
		sched = scheduler.NewCountLimiter(sched, int64(r.Count))
	}
	kongCtx.BindTo(sched, (*scheduler.Scheduler)(nil))
	kongCtx.Bind(DurationLimit{r.Duration})
	return nil
}

type RPS struct {
	Const     RPSConst     `cmd:"" group:"rps" help:"Const rps."`
	Line      RPSLine      `cmd:"" group:"rps" help:"Linear rps."`
	Unlimited RPSUnlimited `cmd:"" group:"rps" help:"Unlimited rps (default one)." default:""`
}

// DurationLimit of zero means no limit.
type DurationLimit struct {
	Duration time.Duration
}

type BenchCommand struct {
	URL         string            `required:"" help:"Request URL (http://host:port/path)."`
	Method      string            `default:"POST" help:"Request method."`
	BodySize    bytesize.ByteSize `default:"0" help:"Random request body size, 0 for none."`
	Concurrency int               `default:"16" help:"Exchanges in flight."`
	Timeout     time.Duration     `default:"11s" help:"Exchange timeout."`
	Phout       string            `help:"Phout report file." type:"path"`
	Quiet       bool              `help:"Do not print per-second totals."`

	RPS
}

func (c *BenchCommand) Run(
	ctx context.Context,
	globals *Globals,
	sched scheduler.Scheduler,
	d DurationLimit,
) (err error) {
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if d.Duration > 0 {
		sched = scheduler.NewDurationLimiter(sched, d.Duration)
	}
	log, err := globals.logger()
	if err != nil {
		return err
	}

	var reporter report.Reporter = noop.New()
	if !c.Quiet {
		reporter = supersimpleReporter.New(os.Stdout, c.Timeout)
	}
	if c.Phout != "" {
		f, err := os.Create(c.Phout)
		if err != nil {
			return fmt.Errorf("creating phout file(%s): %w", c.Phout, err)
		}
		defer f.Close()
		reporter = multi.New(phoutReporter.New(f, c.Timeout), reporter)
	}
	var rg errgroup.Group
	rg.Go(reporter.Run)

	cl, err := globals.newClient(log, client.WithReporter(reporter))
	if err != nil {
		reporter.Close()
		return multierr.Append(err, rg.Wait())
	}

	req, err := client.NewRequest(c.Method, c.URL)
	if err != nil {
		cl.Close()
		reporter.Close()
		return multierr.Append(err, rg.Wait())
	}
	var body []byte
	if c.BodySize > 0 {
		body = make([]byte, c.BodySize.Int())
		if _, err := rand.Read(body); err != nil {
			panic("assertion error: " + err.Error())
		}
	}

	var n atomic.Int64
	begin := time.Now()
	var wg errgroup.Group
	for range c.Concurrency {
		wg.Go(func() error {
			for scheduler.Wait(ctx, sched, begin, n.Add(1)-1) {
				reqCtx, cancel := context.WithTimeout(ctx, c.Timeout)
				resp, _, err := cl.Do(reqCtx, req, body)
				cancel()
				if err != nil {
					log.Debug("exchange failed", zap.Error(err))
					continue
				}
				if resp.Status >= http.StatusInternalServerError {
					log.Debug("server error", zap.Int("status", resp.Status))
				}
			}
			return nil
		})
	}
	_ = wg.Wait()
	log.Info("bench finished", zap.Int64("exchanges", n.Load()-int64(c.Concurrency)), zap.Duration("took", time.Since(begin)))

	err = cl.Close()
	err = multierr.Append(err, reporter.Close())
	err = multierr.Append(err, rg.Wait())
	memStats(log)
	return err
}

func memStats(log *zap.Logger) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	log.Info(
		"memory stats",
		zap.Uint64("Alloc (MiB)", bToMb(m.Alloc)),
		zap.Uint64("TotalAlloc (MiB)", bToMb(m.TotalAlloc)),
		zap.Uint64("Sys (MiB)", bToMb(m.Sys)),
		zap.Uint64("HeapInuse (MiB)", bToMb(m.HeapInuse)),
		zap.Uint32("NumGC (count)", m.NumGC),
	)
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
