package report

import (
	"context"

	"go.uber.org/zap"

	"github.com/hamed0406/memcacheping/internal/domain"
)

// Log writes one line per outcome. Mismatches log at error level since they
// mean the server answered with wrong data.
type Log struct {
	Logger *zap.Logger
}

func NewLog(l *zap.Logger) *Log { return &Log{Logger: l} }

func (l *Log) Report(_ context.Context, o domain.Outcome) error {
	fields := []zap.Field{
		zap.String("target", string(o.Target)),
		zap.Uint64("round", o.Round),
	}
	if o.CleanupErr != "" {
		fields = append(fields, zap.String("cleanup_error", o.CleanupErr))
	}

	switch {
	case o.Abandoned:
		l.Logger.Info("probe_abandoned", append(fields, zap.String("detail", o.Detail))...)
	case o.Kind == domain.Success:
		l.Logger.Info("probe_success", append(fields, zap.Int64("latency_ns", o.Latency.Nanoseconds()))...)
	case o.Kind == domain.Mismatch:
		l.Logger.Error("probe_mismatch", append(fields, zap.String("detail", o.Detail))...)
	default:
		l.Logger.Warn("probe_failure", append(fields, zap.String("detail", o.Detail))...)
	}
	return nil
}
