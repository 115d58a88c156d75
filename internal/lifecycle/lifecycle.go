// Package lifecycle builds the connection registry at startup and closes
// every handle at shutdown.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/memcacheping/internal/memcache"
)

const DefaultCloseTimeout = 3 * time.Second

var (
	// ErrCloseTimeout is reported for a handle whose close was abandoned.
	ErrCloseTimeout = errors.New("lifecycle: close timed out")
	// ErrShutDown is returned by Start once Shutdown has been called.
	ErrShutDown = errors.New("lifecycle: shut down")
)

type Manager struct {
	Logger       *zap.Logger
	Dialer       memcache.Dialer
	CloseTimeout time.Duration

	mu       sync.Mutex
	registry *memcache.Registry
	started  atomic.Bool
	closed   atomic.Bool
}

func New(logger *zap.Logger, dialer memcache.Dialer, closeTimeout time.Duration) *Manager {
	if closeTimeout <= 0 {
		closeTimeout = DefaultCloseTimeout
	}
	return &Manager{Logger: logger, Dialer: dialer, CloseTimeout: closeTimeout}
}

// Start builds every handle synchronously. Any failure aborts startup and
// leaves nothing open. A Shutdown that arrives while the handles are being
// built wins: the new handles are closed and Start returns ErrShutDown.
func (m *Manager) Start(ctx context.Context, servers []string) (*memcache.Registry, error) {
	if m.closed.Load() {
		return nil, ErrShutDown
	}
	if !m.started.CompareAndSwap(false, true) {
		return nil, errors.New("lifecycle: already started")
	}

	reg, err := memcache.Build(ctx, servers, m.Dialer)
	if err != nil {
		m.started.Store(false)
		return nil, errors.Wrap(err, "lifecycle: build registry")
	}

	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		m.Logger.Warn("registry_discarded", zap.Int("targets", reg.Len()))
		if cerr := m.closeAll(context.Background(), reg); cerr != nil {
			return nil, multierr.Append(ErrShutDown, cerr)
		}
		return nil, ErrShutDown
	}
	m.registry = reg
	m.mu.Unlock()

	m.Logger.Info("registry_ready", zap.Int("targets", reg.Len()), zap.Strings("servers", servers))
	return reg, nil
}

// Shutdown closes every handle in parallel, abandoning any close that takes
// longer than CloseTimeout, so it returns within roughly CloseTimeout. Only
// the first call does any work.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.closed.CompareAndSwap(false, true) {
		m.mu.Unlock()
		return nil
	}
	reg := m.registry
	m.mu.Unlock()
	if reg == nil {
		return nil
	}

	err := m.closeAll(ctx, reg)
	if err != nil {
		m.Logger.Warn("shutdown_incomplete", zap.Error(err))
	} else {
		m.Logger.Info("shutdown_complete", zap.Int("targets", reg.Len()))
	}
	return err
}

func (m *Manager) closeAll(ctx context.Context, reg *memcache.Registry) error {
	targets := reg.Targets()
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t *memcache.Target) {
			defer wg.Done()
			errs[i] = m.closeOne(ctx, t)
		}(i, t)
	}
	wg.Wait()
	return multierr.Combine(errs...)
}

func (m *Manager) closeOne(ctx context.Context, t *memcache.Target) error {
	cctx, cancel := context.WithTimeout(ctx, m.CloseTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- t.Handle.Close(cctx) }()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrapf(err, "close %s", t.ID)
		}
		return nil
	case <-cctx.Done():
		m.Logger.Warn("close_abandoned", zap.String("target", string(t.ID)), zap.Duration("timeout", m.CloseTimeout))
		return errors.Wrapf(ErrCloseTimeout, "close %s", t.ID)
	}
}
