// Package memcache owns the client handles the prober talks through: one
// per configured server plus one spanning all of them.
package memcache

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrCacheMiss is returned by Get when the key does not exist.
var ErrCacheMiss = errors.New("memcache: cache miss")

// Handle is an authenticated, configured connection (or pool) to one or more
// memcached servers. Every call is bounded by the handle's operation timeout
// as well as ctx.
type Handle interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	Close(ctx context.Context) error
}

// Dialer builds a Handle addressed at addrs. A handle addressed at several
// servers distributes keys across them the way the client library does.
type Dialer interface {
	Dial(ctx context.Context, addrs []string) (Handle, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, addrs []string) (Handle, error)

func (f DialerFunc) Dial(ctx context.Context, addrs []string) (Handle, error) {
	return f(ctx, addrs)
}
