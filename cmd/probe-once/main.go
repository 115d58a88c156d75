// Command probe-once runs a single round against the configured servers and
// prints the outcomes as JSON lines. It exits non-zero when any target did
// not succeed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hamed0406/memcacheping/internal/config"
	"github.com/hamed0406/memcacheping/internal/domain"
	"github.com/hamed0406/memcacheping/internal/lifecycle"
	"github.com/hamed0406/memcacheping/internal/memcache"
	"github.com/hamed0406/memcacheping/internal/probe"
	"github.com/hamed0406/memcacheping/internal/report"
	"github.com/hamed0406/memcacheping/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := zap.NewNop()
	if os.Getenv("VERBOSE") != "" {
		logger, _ = zap.NewDevelopment()
	}

	lc := lifecycle.New(logger, &memcache.MCDialer{
		Username:       cfg.Username,
		Password:       cfg.Password,
		ConnectTimeout: cfg.ConnectTimeout,
		OpTimeout:      cfg.OpTimeout,
		Failover:       cfg.Failover,
	}, cfg.CloseTimeout)

	ctx := context.Background()
	reg, err := lc.Start(ctx, cfg.Servers)
	if err != nil {
		fmt.Fprintln(os.Stderr, "startup failed:", err)
		os.Exit(2)
	}

	enc := json.NewEncoder(os.Stdout)
	printer := report.Func(func(_ context.Context, o domain.Outcome) error { return enc.Encode(o) })
	outs := scheduler.New(logger, reg, probe.NewProber(logger), printer, cfg.Interval, cfg.Concurrency).RunRound(ctx)

	if err := lc.Shutdown(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "shutdown:", err)
	}
	for _, o := range outs {
		if !o.OK() {
			os.Exit(1)
		}
	}
}
