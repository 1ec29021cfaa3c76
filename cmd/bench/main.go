// Command bench drives a Processor under a synthetic read-modify-write
// workload for a fixed duration, across whichever concurrency-control
// discipline --mode selects, and logs submitted, committed and aborted
// counts while exposing live prometheus metrics for external scraping.
package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"ccengine/internal/log"
	"ccengine/pkg/engine"
	"ccengine/pkg/metrics"
	"ccengine/pkg/txn"
	"ccengine/pkg/workload"
)

var opts struct {
	Mode        string  `long:"mode" default:"serial" description:"serial|locking-a|locking-b|occ|pocc|mvcc"`
	Workers     int     `long:"workers" default:"8" description:"worker pool size"`
	KeySpace    uint64  `long:"keyspace" default:"1000000" description:"number of pre-initialized keys"`
	RMWKeys     int     `long:"rmw-keys" default:"4" description:"keys touched per read-modify-write transaction"`
	DurationSec int     `long:"duration" default:"10" description:"benchmark duration, in seconds"`
	RatePerSec  float64 `long:"rate" default:"0" description:"open-loop submission rate in txns/sec; 0 means closed-loop"`
	MetricsAddr string  `long:"metrics-addr" default:":9090" description:"address to serve /metrics on"`
}

func parseMode(s string) engine.Mode {
	switch strings.ToLower(s) {
	case "serial":
		return engine.Serial
	case "locking-a":
		return engine.LockingExclusiveOnly
	case "locking-b":
		return engine.Locking
	case "occ":
		return engine.OCC
	case "pocc":
		return engine.ParallelOCC
	case "mvcc":
		return engine.MVCC
	default:
		log.Inst.Fatalf("bench: unknown --mode %q", s)
		panic("unreachable")
	}
}

func main() {
	_, err := flags.Parse(&opts)
	if err != nil {
		if flags.WroteHelp(err) {
			return
		}
		log.Inst.Fatalw("bench: parsing flags", "error", err)
	}

	mode := parseMode(opts.Mode)
	m := metrics.New()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(opts.MetricsAddr, mux); err != nil {
			log.Inst.Errorw("bench: metrics server exited", "error", err)
		}
	}()

	p := engine.New(mode, engine.Options{
		Workers:  opts.Workers,
		KeySpace: opts.KeySpace,
		Metrics:  m,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(opts.DurationSec)*time.Second)
	defer cancel()

	gen := workload.NewUniform(opts.KeySpace, 1)
	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), int(opts.RatePerSec))
	}

	submitted := atomic.NewInt64(0)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
			}
			keys := make([]uint64, opts.RMWKeys)
			for i := range keys {
				keys[i] = gen.Next()
			}
			p.Submit(workload.NewRMW(nil, keys, 1))
			submitted.Inc()
		}
	}()

	var committed, aborted int
collect:
	for {
		select {
		case <-ctx.Done():
			break collect
		case t := <-p.Results():
			switch t.Status() {
			case txn.Committed:
				committed++
			default:
				aborted++
			}
		}
	}

	if err := p.Shutdown(); err != nil {
		log.Inst.Errorw("bench: pool reported task errors", "error", err)
	}

	log.Inst.Infow("bench: run complete",
		"mode", mode.String(),
		"submitted", submitted.Load(),
		"committed", committed,
		"aborted", aborted,
	)
}
