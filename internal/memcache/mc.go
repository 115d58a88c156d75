package memcache

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/memcachier/mc/v3"
	"github.com/pkg/errors"
)

// MCDialer dials memcached over the binary protocol with SASL PLAIN
// authentication against every server.
type MCDialer struct {
	Username       string
	Password       string
	ConnectTimeout time.Duration
	OpTimeout      time.Duration
	// Failover lets a multi-server handle route keys away from servers
	// marked down instead of failing them.
	Failover bool
	Resolver *net.Resolver
}

// Dial resolves every address, builds the client and authenticates eagerly
// with a version round trip to each server. Nothing is deferred to the
// first probe.
func (d *MCDialer) Dial(ctx context.Context, addrs []string) (Handle, error) {
	if len(addrs) == 0 {
		return nil, errors.New("memcache: no addresses")
	}
	if err := d.resolve(ctx, addrs); err != nil {
		return nil, err
	}

	cfg := mc.DefaultConfig()
	cfg.ConnectionTimeout = d.ConnectTimeout
	cfg.Failover = d.Failover
	cfg.TcpNoDelay = true
	client := mc.NewMCwithConfig(strings.Join(addrs, ","), d.Username, d.Password, cfg)

	h := &mcHandle{client: client, timeout: d.OpTimeout}
	err := h.do(ctx, func() error {
		_, err := client.Version()
		return err
	})
	if err != nil {
		client.Quit()
		return nil, errors.Wrapf(err, "memcache: connect %s", strings.Join(addrs, ","))
	}
	return h, nil
}

func (d *MCDialer) resolve(ctx context.Context, addrs []string) error {
	r := d.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	for _, a := range addrs {
		host, _, err := net.SplitHostPort(a)
		if err != nil {
			return errors.Wrapf(err, "memcache: address %q", a)
		}
		if net.ParseIP(host) != nil {
			continue
		}
		if _, err := r.LookupHost(ctx, host); err != nil {
			return errors.Wrapf(err, "memcache: resolve %q", a)
		}
	}
	return nil
}

// mcClient is the part of *mc.Client a handle uses.
type mcClient interface {
	Set(key, val string, flags, exp uint32, ocas uint64) (uint64, error)
	Get(key string) (string, uint32, uint64, error)
	Del(key string) error
	Quit()
}

type mcHandle struct {
	client  mcClient
	timeout time.Duration
}

// expiration converts a TTL to memcached seconds. Zero means "never expire"
// to the server, so any positive TTL is rounded up to at least one second.
func expiration(ttl time.Duration) uint32 {
	if ttl <= 0 {
		return 0
	}
	secs := (ttl + time.Second - 1) / time.Second
	return uint32(secs)
}

// call runs fn and abandons it once the operation timeout or ctx expires.
// The client stays usable; a late reply is discarded. fn is not started
// when ctx is already done.
func call[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, errors.Wrap(err, "memcache: operation not started")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, errors.Wrap(ctx.Err(), "memcache: operation abandoned")
	}
}

func (h *mcHandle) do(ctx context.Context, fn func() error) error {
	_, err := call(ctx, h.timeout, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

func (h *mcHandle) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return h.do(ctx, func() error {
		_, err := h.client.Set(key, value, 0, expiration(ttl), 0)
		return err
	})
}

func (h *mcHandle) Get(ctx context.Context, key string) (string, error) {
	val, err := call(ctx, h.timeout, func() (string, error) {
		v, _, _, err := h.client.Get(key)
		return v, err
	})
	if errors.Is(err, mc.ErrNotFound) {
		return "", ErrCacheMiss
	}
	return val, err
}

// Delete treats a missing key as already deleted.
func (h *mcHandle) Delete(ctx context.Context, key string) error {
	err := h.do(ctx, func() error { return h.client.Del(key) })
	if errors.Is(err, mc.ErrNotFound) {
		return nil
	}
	return err
}

func (h *mcHandle) Close(ctx context.Context) error {
	return h.do(ctx, func() error {
		h.client.Quit()
		return nil
	})
}
