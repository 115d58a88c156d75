// Package probe runs the write, verify and cleanup cycle against a single
// memcache target and classifies what happened.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hamed0406/memcacheping/internal/domain"
	"github.com/hamed0406/memcacheping/internal/memcache"
)

const (
	// DefaultTTL is short so a key whose cleanup failed expires on its own.
	DefaultTTL = 5 * time.Second
	// DefaultCleanupTimeout bounds the delete when the probe context is
	// already cancelled.
	DefaultCleanupTimeout = 10 * time.Second
)

// ErrMismatch marks a read that completed but returned other data than was
// written.
var ErrMismatch = errors.New("probe: value mismatch")

// Checker probes one target.
type Checker interface {
	Check(ctx context.Context, id domain.TargetID, h memcache.Handle) domain.Outcome
}

type Prober struct {
	Logger         *zap.Logger
	Clock          clock.Clock
	TTL            time.Duration
	CleanupTimeout time.Duration
	NewKey         func() string
}

func NewProber(logger *zap.Logger) *Prober {
	return &Prober{
		Logger:         logger,
		Clock:          clock.New(),
		TTL:            DefaultTTL,
		CleanupTimeout: DefaultCleanupTimeout,
		NewKey:         uuid.NewString,
	}
}

// Check writes a fresh key as its own value, reads it back and compares.
// Latency covers the read only. The key is deleted exactly once on every
// path, including a failed write and a panicking handle. Check never
// panics and never returns without an outcome.
func (p *Prober) Check(ctx context.Context, id domain.TargetID, h memcache.Handle) (out domain.Outcome) {
	key := p.NewKey()
	out = domain.Outcome{Target: id, CheckedAt: p.Clock.Now().UTC()}

	defer func() {
		if err := p.cleanup(ctx, h, key); err != nil {
			out.CleanupErr = err.Error()
			p.Logger.Warn("probe_cleanup_failed",
				zap.String("target", string(id)),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			out = failed(out, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := h.Set(ctx, key, key, p.TTL); err != nil {
		return failed(out, errors.Wrap(err, "set"))
	}

	start := p.Clock.Now()
	got, err := h.Get(ctx, key)
	elapsed := p.Clock.Since(start)

	switch {
	case errors.Is(err, memcache.ErrCacheMiss):
		return mismatched(out, errors.Wrap(ErrMismatch, "key not found after set"))
	case err != nil:
		return failed(out, errors.Wrap(err, "get"))
	case got != key:
		return mismatched(out, errors.Wrapf(ErrMismatch, "want %q got %q", key, got))
	}

	out.Kind = domain.Success
	out.Latency = elapsed
	return out
}

// cleanup deletes key on a context detached from ctx's cancellation so an
// in-flight probe still cleans up during shutdown.
func (p *Prober) cleanup(ctx context.Context, h memcache.Handle, key string) (err error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.CleanupTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Delete(cctx, key)
}

func failed(o domain.Outcome, err error) domain.Outcome {
	o.Kind = domain.Error
	o.Latency = 0
	o.Detail = err.Error()
	return o
}

func mismatched(o domain.Outcome, err error) domain.Outcome {
	o.Kind = domain.Mismatch
	o.Latency = 0
	o.Detail = err.Error()
	return o
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, id domain.TargetID, h memcache.Handle) domain.Outcome

func (f CheckerFunc) Check(ctx context.Context, id domain.TargetID, h memcache.Handle) domain.Outcome {
	return f(ctx, id, h)
}
