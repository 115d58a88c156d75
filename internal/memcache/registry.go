package memcache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/memcacheping/internal/domain"
)

// abortCloseTimeout bounds closing handles of a build that failed halfway.
const abortCloseTimeout = 3 * time.Second

// Target is one probed entity and the handle it exclusively owns.
type Target struct {
	ID     domain.TargetID
	Addrs  []string
	Handle Handle
}

// Registry holds the targets built at startup in a fixed order: the
// aggregate target first, then one per server in configuration order.
// It is immutable after Build.
type Registry struct {
	targets []*Target
	byID    map[domain.TargetID]*Target
}

// Build dials N+1 handles for N servers. Handles are dialled in parallel;
// if any fails the ones already built are closed and the error returned.
func Build(ctx context.Context, servers []string, d Dialer) (*Registry, error) {
	if len(servers) == 0 {
		return nil, errors.New("memcache: no servers configured")
	}

	targets := make([]*Target, 0, len(servers)+1)
	targets = append(targets, &Target{ID: domain.AllTargets, Addrs: append([]string(nil), servers...)})
	byID := map[domain.TargetID]*Target{domain.AllTargets: targets[0]}
	for _, s := range servers {
		id := domain.TargetID(s)
		if _, dup := byID[id]; dup {
			return nil, errors.Errorf("memcache: duplicate target %q", s)
		}
		t := &Target{ID: id, Addrs: []string{s}}
		targets = append(targets, t)
		byID[id] = t
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			h, err := d.Dial(gctx, t.Addrs)
			if err != nil {
				return errors.Wrapf(err, "target %s", t.ID)
			}
			t.Handle = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		cctx, cancel := context.WithTimeout(context.Background(), abortCloseTimeout)
		defer cancel()
		for _, t := range targets {
			if t.Handle != nil {
				_ = t.Handle.Close(cctx)
			}
		}
		return nil, err
	}
	return &Registry{targets: targets, byID: byID}, nil
}

// Targets returns the targets in registration order.
func (r *Registry) Targets() []*Target {
	out := make([]*Target, len(r.targets))
	copy(out, r.targets)
	return out
}

func (r *Registry) Len() int { return len(r.targets) }

func (r *Registry) Get(id domain.TargetID) (*Target, bool) {
	t, ok := r.byID[id]
	return t, ok
}

func (r *Registry) IDs() []domain.TargetID {
	ids := make([]domain.TargetID, len(r.targets))
	for i, t := range r.targets {
		ids[i] = t.ID
	}
	return ids
}
