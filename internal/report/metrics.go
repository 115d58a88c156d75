package report

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hamed0406/memcacheping/internal/domain"
)

// Metrics exports outcome counters, read latency and the time of the last
// success per target.
type Metrics struct {
	outcomes    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	cleanups    *prometheus.CounterVec
	abandoned   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memcacheping",
			Name:      "outcomes_total",
			Help:      "Probe outcomes by target and kind.",
		}, []string{"target", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "memcacheping",
			Name:      "read_latency_seconds",
			Help:      "Latency of the read step of successful probes.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"target"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "memcacheping",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful probe.",
		}, []string{"target"}),
		cleanups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memcacheping",
			Name:      "cleanup_failures_total",
			Help:      "Probe keys that could not be deleted.",
		}, []string{"target"}),
		abandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memcacheping",
			Name:      "abandoned_total",
			Help:      "Targets skipped because their round was cancelled.",
		}, []string{"target"}),
	}
	for _, c := range []prometheus.Collector{m.outcomes, m.latency, m.lastSuccess, m.cleanups, m.abandoned} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Report(_ context.Context, o domain.Outcome) error {
	target := string(o.Target)
	if o.Abandoned {
		m.abandoned.WithLabelValues(target).Inc()
		return nil
	}
	m.outcomes.WithLabelValues(target, o.Kind.String()).Inc()
	if o.CleanupErr != "" {
		m.cleanups.WithLabelValues(target).Inc()
	}
	if o.Kind == domain.Success {
		m.latency.WithLabelValues(target).Observe(o.Latency.Seconds())
		m.lastSuccess.WithLabelValues(target).Set(float64(o.CheckedAt.Unix()) + float64(o.CheckedAt.Nanosecond())/1e9)
	}
	return nil
}
