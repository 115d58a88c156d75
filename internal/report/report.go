// Package report delivers probe outcomes to logs, metrics and the status
// store.
package report

import (
	"context"

	"go.uber.org/multierr"

	"github.com/hamed0406/memcacheping/internal/domain"
)

// Reporter receives each outcome synchronously at the point of
// classification. Implementations used with a concurrent scheduler must be
// safe for concurrent use.
type Reporter interface {
	Report(ctx context.Context, o domain.Outcome) error
}

// Func adapts a function to Reporter.
type Func func(ctx context.Context, o domain.Outcome) error

func (f Func) Report(ctx context.Context, o domain.Outcome) error { return f(ctx, o) }

// Multi calls every reporter, even after one fails.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, o domain.Outcome) error {
	var errs error
	for _, r := range m {
		if r == nil {
			continue
		}
		errs = multierr.Append(errs, r.Report(ctx, o))
	}
	return errs
}
