package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hamed0406/memcacheping/internal/config"
	"github.com/hamed0406/memcacheping/internal/httpapi"
	"github.com/hamed0406/memcacheping/internal/lifecycle"
	"github.com/hamed0406/memcacheping/internal/logging"
	"github.com/hamed0406/memcacheping/internal/memcache"
	"github.com/hamed0406/memcacheping/internal/probe"
	"github.com/hamed0406/memcacheping/internal/repo/memory"
	"github.com/hamed0406/memcacheping/internal/report"
	"github.com/hamed0406/memcacheping/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := runProber(logger, cfg); err != nil {
		logger.Error("exit", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("exiting")
}

func runProber(logger *zap.Logger, cfg config.Config) error {
	lc := lifecycle.New(logger, &memcache.MCDialer{
		Username:       cfg.Username,
		Password:       cfg.Password,
		ConnectTimeout: cfg.ConnectTimeout,
		OpTimeout:      cfg.OpTimeout,
		Failover:       cfg.Failover,
	}, cfg.CloseTimeout)

	startCtx, cancelStart := context.WithTimeout(context.Background(), cfg.ConnectTimeout+cfg.OpTimeout)
	reg, err := lc.Start(startCtx, cfg.Servers)
	cancelStart()
	if err != nil {
		return err
	}
	defer func() {
		_ = lc.Shutdown(context.Background())
	}()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := report.NewMetrics(promReg)
	if err != nil {
		return err
	}
	store := memory.New(reg.IDs()...)
	reporter := report.Multi{report.NewLog(logger), metrics, store}

	sched := scheduler.New(logger, reg, probe.NewProber(logger), reporter, cfg.Interval, cfg.Concurrency)

	var g run.Group
	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return sched.Run(ctx)
		}, func(error) {
			cancel()
		})
	}
	if cfg.Addr != "" {
		api := httpapi.NewServer(logger, store, promReg)
		opts := httpapi.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			APIKeys:        cfg.APIKeys,
			RPM:            cfg.RPM,
			Burst:          cfg.Burst,
		}
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return api.Serve(ctx, cfg.Addr, opts, cfg.CloseTimeout)
		}, func(error) {
			cancel()
		})
	}
	{
		cancel := make(chan struct{})
		g.Add(func() error {
			return interrupt(logger, cancel)
		}, func(error) {
			close(cancel)
		})
	}

	err = g.Run()
	if errors.Is(err, errSignal) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var errSignal = errors.New("received shutdown signal")

func interrupt(logger *zap.Logger, cancel <-chan struct{}) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	select {
	case s := <-c:
		logger.Info("caught_signal", zap.String("signal", s.String()))
		return fmt.Errorf("%w: %s", errSignal, s)
	case <-cancel:
		return errors.New("canceled")
	}
}
