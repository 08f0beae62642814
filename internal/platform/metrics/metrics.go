// Package metrics exposes Prometheus instruments for the memory image.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for operation counters.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeOK         = "ok"
	OutcomeFailed     = "failed"
)

// Collector groups the memory image instruments. A nil *Collector is valid
// and records nothing.
type Collector struct {
	Mutations      *prometheus.CounterVec
	Queries        *prometheus.CounterVec
	Rollbacks      prometheus.Counter
	Inconsistent   prometheus.Counter
	ReplayedEvents prometheus.Counter
	MutationTime   *prometheus.HistogramVec
	LockWait       *prometheus.HistogramVec
}

// NewCollector creates the instruments and registers them with reg when reg
// is not nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memimg",
			Name:      "mutations_total",
			Help:      "Executed mutations by type and outcome",
		}, []string{"type", "outcome"}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memimg",
			Name:      "queries_total",
			Help:      "Executed queries by type and outcome",
		}, []string{"type", "outcome"}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memimg",
			Name:      "rollbacks_total",
			Help:      "Transactions rolled back",
		}),
		Inconsistent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memimg",
			Name:      "inconsistencies_total",
			Help:      "Rollbacks that failed and left the image unusable",
		}),
		ReplayedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memimg",
			Name:      "replayed_events_total",
			Help:      "Events replayed at startup",
		}),
		MutationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "memimg",
			Name:      "mutation_seconds",
			Help:      "Mutation transaction duration including append",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"type"}),
		LockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "memimg",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the image lock",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"mode"}),
	}
	if reg == nil {
		return c, nil
	}
	for _, collector := range []prometheus.Collector{
		c.Mutations, c.Queries, c.Rollbacks, c.Inconsistent, c.ReplayedEvents, c.MutationTime, c.LockWait,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveMutation records one mutation outcome and its duration.
func (c *Collector) ObserveMutation(mutationType, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Mutations.WithLabelValues(mutationType, outcome).Inc()
	c.MutationTime.WithLabelValues(mutationType).Observe(elapsed.Seconds())
	if outcome == OutcomeRolledBack {
		c.Rollbacks.Inc()
	}
}

// ObserveQuery records one query outcome.
func (c *Collector) ObserveQuery(queryType, outcome string) {
	if c == nil {
		return
	}
	c.Queries.WithLabelValues(queryType, outcome).Inc()
}

// ObserveLockWait records time spent acquiring the lock in mode ("read" or
// "write").
func (c *Collector) ObserveLockWait(mode string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.LockWait.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// ObserveReplayed adds n replayed events.
func (c *Collector) ObserveReplayed(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.ReplayedEvents.Add(float64(n))
}

// ObserveInconsistency records a failed rollback.
func (c *Collector) ObserveInconsistency() {
	if c == nil {
		return
	}
	c.Inconsistent.Inc()
}
