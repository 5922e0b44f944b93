package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus instruments the loop records against. The
// zero value is not usable; construct with NewMetrics.
type Metrics struct {
	ticksTotal           prometheus.Counter
	firingsEnqueuedTotal prometheus.Counter
	lockContendedTotal   prometheus.Counter
	storageErrorsTotal   prometheus.Counter
	tickDuration         prometheus.Histogram
}

// NewMetrics constructs the loop's instruments and registers them against
// reg. Pass prometheus.DefaultRegisterer to register globally, or a fresh
// *prometheus.Registry in tests to avoid collisions across test runs.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of scheduler ticks completed.",
		}),
		firingsEnqueuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "firings_enqueued_total",
			Help:      "Total number of (job, firing) pairs this replica newly enqueued.",
		}),
		lockContendedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_contended_total",
			Help:      "Total number of firings this replica lost the enqueue lock for.",
		}),
		storageErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Total number of per-schedule storage errors encountered during ticks.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of a complete tick across all schedules.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.ticksTotal,
		m.firingsEnqueuedTotal,
		m.lockContendedTotal,
		m.storageErrorsTotal,
		m.tickDuration,
	)
	return m
}
