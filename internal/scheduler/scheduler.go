package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/hamed0406/memcacheping/internal/domain"
	"github.com/hamed0406/memcacheping/internal/memcache"
	"github.com/hamed0406/memcacheping/internal/probe"
	"github.com/hamed0406/memcacheping/internal/report"
)

const DefaultInterval = 5000 * time.Millisecond

var ErrAlreadyRunning = errors.New("scheduler: already running")

// TargetSource lists the targets of a round in a stable order.
type TargetSource interface {
	Targets() []*memcache.Target
}

type Scheduler struct {
	Logger      *zap.Logger
	Targets     TargetSource
	Checker     probe.Checker
	Reporter    report.Reporter
	Interval    time.Duration
	Concurrency int
	Clock       clock.Clock

	rounds  atomic.Uint64
	running atomic.Bool
}

func New(
	logger *zap.Logger,
	targets TargetSource,
	checker probe.Checker,
	reporter report.Reporter,
	interval time.Duration,
	concurrency int,
) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		Logger:      logger,
		Targets:     targets,
		Checker:     checker,
		Reporter:    reporter,
		Interval:    interval,
		Concurrency: concurrency,
		Clock:       clock.New(),
	}
}

// Run does an immediate round, then waits Interval after each round
// finishes before starting the next, so rounds never overlap. It returns
// ctx.Err() once ctx is cancelled; no round starts after that.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.Logger.Info("scheduler_started",
		zap.Duration("interval", s.Interval),
		zap.Int("concurrency", s.Concurrency),
	)
	for {
		if err := ctx.Err(); err != nil {
			s.Logger.Info("scheduler_stopped", zap.Uint64("rounds", s.rounds.Load()))
			return err
		}
		s.RunRound(ctx)

		t := s.Clock.Timer(s.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
}

// Rounds is the number of rounds started so far.
func (s *Scheduler) Rounds() uint64 { return s.rounds.Load() }

// RunRound probes every target once and returns the outcomes in target
// order. Each outcome is reported as soon as it is classified. Once ctx is
// done the remaining targets are not checked; each still gets one
// abandoned outcome so the round stays complete.
func (s *Scheduler) RunRound(ctx context.Context) []domain.Outcome {
	round := s.rounds.Inc()
	targets := s.Targets.Targets()
	outs := make([]domain.Outcome, len(targets))
	start := s.Clock.Now()

	if s.Concurrency <= 1 {
		for i, t := range targets {
			if ctx.Err() != nil {
				outs[i] = s.abandon(ctx, round, t)
				continue
			}
			outs[i] = s.probe(ctx, round, t)
		}
	} else {
		sem := make(chan struct{}, s.Concurrency)
		var wg sync.WaitGroup
		for i, t := range targets {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outs[i] = s.abandon(ctx, round, t)
				continue
			}
			if ctx.Err() != nil {
				<-sem
				outs[i] = s.abandon(ctx, round, t)
				continue
			}
			wg.Add(1)
			go func(i int, t *memcache.Target) {
				defer func() { <-sem }()
				defer wg.Done()
				outs[i] = s.probe(ctx, round, t)
			}(i, t)
		}
		wg.Wait()
	}

	failed, abandoned := 0, 0
	for _, o := range outs {
		switch {
		case o.Abandoned:
			abandoned++
		case !o.OK():
			failed++
		}
	}
	s.Logger.Debug("round_complete",
		zap.Uint64("round", round),
		zap.Int("targets", len(targets)),
		zap.Int("failed", failed),
		zap.Int("abandoned", abandoned),
		zap.Duration("took", s.Clock.Since(start)),
	)
	return outs
}

func (s *Scheduler) abandon(ctx context.Context, round uint64, t *memcache.Target) domain.Outcome {
	o := domain.Outcome{
		Target:    t.ID,
		Kind:      domain.Error,
		Detail:    "round abandoned: " + ctx.Err().Error(),
		Abandoned: true,
		Round:     round,
		CheckedAt: s.Clock.Now().UTC(),
	}
	s.report(ctx, o)
	return o
}

func (s *Scheduler) report(ctx context.Context, o domain.Outcome) {
	if err := s.Reporter.Report(ctx, o); err != nil {
		s.Logger.Warn("report_error",
			zap.String("target", string(o.Target)),
			zap.Uint64("round", o.Round),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) probe(ctx context.Context, round uint64, t *memcache.Target) (o domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o = domain.Outcome{
				Target:    t.ID,
				Kind:      domain.Error,
				Detail:    fmt.Sprintf("panic: %v", r),
				CheckedAt: s.Clock.Now().UTC(),
			}
		}
		o.Round = round
		s.report(ctx, o)
	}()
	return s.Checker.Check(ctx, t.ID, t.Handle)
}
