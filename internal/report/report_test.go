package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/memcacheping/internal/domain"
)

func TestMulti_CallsEveryReporterAndCombinesErrors(t *testing.T) {
	var calls int
	count := Func(func(context.Context, domain.Outcome) error { calls++; return nil })
	fail := Func(func(context.Context, domain.Outcome) error { calls++; return errors.New("sink down") })

	m := Multi{fail, nil, count, fail}
	err := m.Report(context.Background(), domain.Outcome{Target: "all"})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "sink down")
}

func TestLog_LevelsByKind(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewLog(zap.New(core))
	ctx := context.Background()

	require.NoError(t, l.Report(ctx, domain.Outcome{Target: "all", Kind: domain.Success, Latency: 1200}))
	require.NoError(t, l.Report(ctx, domain.Outcome{Target: "a:1", Kind: domain.Mismatch, Detail: "stale"}))
	require.NoError(t, l.Report(ctx, domain.Outcome{Target: "b:1", Kind: domain.Error, Detail: "refused", CleanupErr: "refused"}))

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, "probe_success", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.EqualValues(t, 1200, entries[0].ContextMap()["latency_ns"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "probe_failure", entries[2].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "refused", entries[2].ContextMap()["cleanup_error"])
}

func TestMetrics_CountsAndLatency(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.Report(ctx, domain.Outcome{Target: "all", Kind: domain.Success, Latency: 2 * time.Millisecond, CheckedAt: now}))
	require.NoError(t, m.Report(ctx, domain.Outcome{Target: "all", Kind: domain.Success, Latency: time.Millisecond, CheckedAt: now}))
	require.NoError(t, m.Report(ctx, domain.Outcome{Target: "all", Kind: domain.Mismatch, CleanupErr: "x"}))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues("all", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("all", "mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cleanups.WithLabelValues("all")))
	assert.Equal(t, float64(now.Unix()), testutil.ToFloat64(m.lastSuccess.WithLabelValues("all")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.latency))

	// Registering twice on the same registry is refused.
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestAbandonedOutcomesStayOutOfErrorCounts(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewLog(zap.New(core))
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	ctx := context.Background()
	o := domain.Outcome{Target: "b:1", Kind: domain.Error, Detail: "round abandoned: context canceled", Abandoned: true}

	require.NoError(t, Multi{l, m}.Report(ctx, o))

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, "probe_abandoned", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.abandoned.WithLabelValues("b:1")))
	assert.Equal(t, 0, testutil.CollectAndCount(m.outcomes))
}
