package repo

import (
	"context"

	"github.com/hamed0406/memcacheping/internal/domain"
)

// OutcomeStore keeps the most recent outcome per target for the status API.
// Nothing is persisted across restarts.
type OutcomeStore interface {
	Report(ctx context.Context, o domain.Outcome) error
	Latest(ctx context.Context) ([]domain.Outcome, error)
	ByTarget(ctx context.Context, id domain.TargetID) (*domain.Outcome, error)
	// Summaries returns per-target outcome counts in target order.
	Summaries(ctx context.Context) ([]Summary, error)
	// Ready reports whether every expected target has at least one outcome.
	Ready(ctx context.Context) bool
}

// Summary counts outcomes by kind for one target. Abandoned targets are
// counted apart from Error since nothing was sent to the server.
type Summary struct {
	Target    domain.TargetID `json:"target"`
	Success   uint64          `json:"success"`
	Mismatch  uint64          `json:"mismatch"`
	Error     uint64          `json:"error"`
	Abandoned uint64          `json:"abandoned"`
}
