package memcache

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/memcachier/mc/v3"
)

// stubClient answers like a memcached server holding values in a map.
type stubClient struct {
	mu     sync.Mutex
	values map[string]string
	exps   map[string]uint32
	quits  int
	err    error
}

func newStubClient() *stubClient {
	return &stubClient{values: map[string]string{}, exps: map[string]uint32{}}
}

func (c *stubClient) Set(key, val string, flags, exp uint32, ocas uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.values[key] = val
	c.exps[key] = exp
	return 1, nil
}

func (c *stubClient) Get(key string) (string, uint32, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", 0, 0, c.err
	}
	v, ok := c.values[key]
	if !ok {
		return "", 0, 0, mc.ErrNotFound
	}
	return v, 0, 1, nil
}

func (c *stubClient) Del(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if _, ok := c.values[key]; !ok {
		return mc.ErrNotFound
	}
	delete(c.values, key)
	return nil
}

func (c *stubClient) Quit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quits++
}

func TestCall_AbandonsAfterTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := call(context.Background(), 20*time.Millisecond, func() (string, error) {
		<-release
		return "late", nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("call blocked for %v", d)
	}
}

func TestCall_ReturnsResult(t *testing.T) {
	v, err := call(context.Background(), time.Second, func() (string, error) { return "v", nil })
	if err != nil || v != "v" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestCall_DoneContextNeverStartsOperation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	_, err := call(ctx, time.Second, func() (string, error) {
		ran = true
		return "v", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled, got %v", err)
	}
	if ran {
		t.Fatalf("operation ran on a done context")
	}
}

func TestExpiration_RoundsUpToWholeSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want uint32
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Millisecond, 1},
		{999 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{5 * time.Second, 5},
	}
	for _, tt := range tests {
		if got := expiration(tt.ttl); got != tt.want {
			t.Errorf("expiration(%v) = %d, want %d", tt.ttl, got, tt.want)
		}
	}
}

func TestMCHandle_MapsClientResults(t *testing.T) {
	ctx := context.Background()
	c := newStubClient()
	h := &mcHandle{client: c, timeout: time.Second}

	if _, err := h.Get(ctx, "absent"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("miss: want ErrCacheMiss, got %v", err)
	}
	if err := h.Delete(ctx, "absent"); err != nil {
		t.Fatalf("deleting a missing key should succeed, got %v", err)
	}

	if err := h.Set(ctx, "k", "v", 500*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if c.exps["k"] != 1 {
		t.Fatalf("sub-second ttl sent as %d, want 1", c.exps["k"])
	}
	if v, err := h.Get(ctx, "k"); err != nil || v != "v" {
		t.Fatalf("Get: %q %v", v, err)
	}
	if err := h.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	c.err = mc.ErrAuthRequired
	if _, err := h.Get(ctx, "k"); !errors.Is(err, mc.ErrAuthRequired) || errors.Is(err, ErrCacheMiss) {
		t.Fatalf("server error should pass through, got %v", err)
	}
	if err := h.Delete(ctx, "k"); !errors.Is(err, mc.ErrAuthRequired) {
		t.Fatalf("delete error should pass through, got %v", err)
	}

	if err := h.Close(ctx); err != nil || c.quits != 1 {
		t.Fatalf("Close: %v quits=%d", err, c.quits)
	}
}

func TestMCDialer_RejectsBadAddressBeforeConnecting(t *testing.T) {
	d := &MCDialer{Username: "u", Password: "p", OpTimeout: time.Second}

	if _, err := d.Dial(context.Background(), nil); err == nil {
		t.Fatalf("want error for empty address list")
	}
	if _, err := d.Dial(context.Background(), []string{"no-port"}); err == nil {
		t.Fatalf("want error for address without port")
	}

	// A resolver that never answers turns into a resolution error.
	d.Resolver = &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			return nil, errors.New("resolver offline")
		},
	}
	if _, err := d.Dial(context.Background(), []string{"cache.invalid:11211"}); err == nil {
		t.Fatalf("want error for unresolvable host")
	}
}
