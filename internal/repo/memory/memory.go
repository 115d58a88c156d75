package memory

import (
	"context"
	"sync"

	"github.com/hamed0406/memcacheping/internal/domain"
	"github.com/hamed0406/memcacheping/internal/repo"
)

type Store struct {
	mu       sync.RWMutex
	order    []domain.TargetID
	latest   map[domain.TargetID]domain.Outcome
	counts   map[domain.TargetID]*repo.Summary
	expected map[domain.TargetID]bool
}

// New returns a store that lists targets in the given order. Targets first
// seen through Report are appended after them.
func New(ids ...domain.TargetID) *Store {
	s := &Store{
		latest:   make(map[domain.TargetID]domain.Outcome),
		counts:   make(map[domain.TargetID]*repo.Summary),
		expected: make(map[domain.TargetID]bool, len(ids)),
	}
	for _, id := range ids {
		if !s.expected[id] {
			s.expected[id] = true
			s.order = append(s.order, id)
		}
	}
	return s
}

func (m *Store) Report(ctx context.Context, o domain.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counts[o.Target]
	if c == nil {
		c = &repo.Summary{Target: o.Target}
		m.counts[o.Target] = c
		if !m.expected[o.Target] {
			m.order = append(m.order, o.Target)
		}
	}
	switch {
	case o.Abandoned:
		c.Abandoned++
	case o.Kind == domain.Success:
		c.Success++
	case o.Kind == domain.Mismatch:
		c.Mismatch++
	default:
		c.Error++
	}
	if cur, ok := m.latest[o.Target]; !ok || o.Round >= cur.Round {
		m.latest[o.Target] = o
	}
	return nil
}

func (m *Store) Latest(ctx context.Context) ([]domain.Outcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Outcome, 0, len(m.latest))
	for _, id := range m.order {
		if o, ok := m.latest[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// ByTarget returns nil, nil when the target has no outcome yet.
func (m *Store) ByTarget(ctx context.Context, id domain.TargetID) (*domain.Outcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.latest[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *Store) Summaries(ctx context.Context) ([]repo.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]repo.Summary, 0, len(m.counts))
	for _, id := range m.order {
		if c := m.counts[id]; c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *Store) Ready(ctx context.Context) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.expected) == 0 {
		return len(m.latest) > 0
	}
	for id := range m.expected {
		if _, ok := m.latest[id]; !ok {
			return false
		}
	}
	return true
}
