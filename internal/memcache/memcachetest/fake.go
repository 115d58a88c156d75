// Package memcachetest provides an in-memory memcache.Handle with fault
// injection for tests.
package memcachetest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hamed0406/memcacheping/internal/memcache"
)

// Fake stores values in a map. The hooks, when set, run before the
// corresponding operation; a non-nil error from a hook fails the operation.
type Fake struct {
	mu     sync.Mutex
	values map[string]string

	OnSet    func(key string) error
	OnGet    func(key string) error
	OnDelete func(key string) error
	OnClose  func(ctx context.Context) error

	// Tamper, when set, replaces the value returned by a successful Get.
	Tamper func(stored string) string

	sets, gets, deletes, closes int
	lastTTL                     time.Duration
}

func New() *Fake { return &Fake{values: map[string]string{}} }

func (f *Fake) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.OnSet != nil {
		if err := f.OnSet(key); err != nil {
			f.count(&f.sets)
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.lastTTL = ttl
	f.values[key] = value
	return nil
}

func (f *Fake) Get(ctx context.Context, key string) (string, error) {
	if f.OnGet != nil {
		if err := f.OnGet(key); err != nil {
			f.count(&f.gets)
			return "", err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	v, ok := f.values[key]
	if !ok {
		return "", memcache.ErrCacheMiss
	}
	if f.Tamper != nil {
		v = f.Tamper(v)
	}
	return v, nil
}

func (f *Fake) Delete(ctx context.Context, key string) error {
	f.count(&f.deletes)
	if f.OnDelete != nil {
		if err := f.OnDelete(key); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}

func (f *Fake) Close(ctx context.Context) error {
	f.count(&f.closes)
	if f.OnClose != nil {
		return f.OnClose(ctx)
	}
	return nil
}

func (f *Fake) count(n *int) {
	f.mu.Lock()
	*n++
	f.mu.Unlock()
}

// Counts returns how many sets, gets, deletes and closes were attempted.
func (f *Fake) Counts() (sets, gets, deletes, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets, f.gets, f.deletes, f.closes
}

// Len is the number of keys currently stored.
func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.values)
}

func (f *Fake) LastTTL() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTTL
}

// Dialer hands out fakes by address list. Unknown address lists get a
// fresh healthy fake.
type Dialer struct {
	mu      sync.Mutex
	Handles map[string]*Fake
	Fail    map[string]error
	Dialed  []string
}

func NewDialer() *Dialer {
	return &Dialer{Handles: map[string]*Fake{}, Fail: map[string]error{}}
}

func (d *Dialer) Dial(ctx context.Context, addrs []string) (memcache.Handle, error) {
	key := Key(addrs)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Dialed = append(d.Dialed, key)
	if err := d.Fail[key]; err != nil {
		return nil, err
	}
	f, ok := d.Handles[key]
	if !ok {
		f = New()
		d.Handles[key] = f
	}
	return f, nil
}

// Fake returns the fake dialled (or to be dialled) for addrs.
func (d *Dialer) Fake(addrs ...string) *Fake {
	key := Key(addrs)
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.Handles[key]
	if !ok {
		f = New()
		d.Handles[key] = f
	}
	return f
}

// Key joins addrs the way the dialer indexes handles.
func Key(addrs []string) string { return strings.Join(addrs, ",") }
